package ppv

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the content type a PPV offer unlocks.
type Kind string

const (
	KindPhoto  Kind = "PHOTO"
	KindVideo  Kind = "VIDEO"
	KindBundle Kind = "BUNDLE"
)

// Command is a pay-per-view directive extracted from a script body. Two
// surface syntaxes produce the same structure:
//
//	[PPV:<type>:<price>:<description...>]
//	{{PPV:<TYPE>:price=<n>:description=<t>:photos=<i>:videos=<i>}}
type Command struct {
	Kind        Kind
	Price       float64
	Description string
	Photos      int
	Videos      int
	Raw         string // original matched substring
	Position    int    // byte offset in the script
}

// End returns the byte offset just past the command's source span.
func (c Command) End() int {
	return c.Position + len(c.Raw)
}

var (
	bracketRe = regexp.MustCompile(`\[PPV:([^\]]+)\]`)
	braceRe   = regexp.MustCompile(`\{\{PPV:([^}]+)\}\}`)
)

func parseKind(token string) (Kind, bool) {
	switch Kind(strings.ToUpper(strings.TrimSpace(token))) {
	case KindPhoto:
		return KindPhoto, true
	case KindVideo:
		return KindVideo, true
	case KindBundle:
		return KindBundle, true
	}
	return "", false
}

// ParseCommands extracts every well-formed PPV command from a script, in
// source order. Malformed candidates (unknown type, non-positive or unparsable
// price) are dropped silently; the surrounding text stays plain message
// content. When spans produced by the two syntaxes overlap, the leftmost span
// wins and the nested match is rejected.
func ParseCommands(script string) []Command {
	var commands []Command

	for _, m := range bracketRe.FindAllStringSubmatchIndex(script, -1) {
		raw := script[m[0]:m[1]]
		params := script[m[2]:m[3]]
		if cmd, ok := parseBracketParams(params); ok {
			cmd.Raw = raw
			cmd.Position = m[0]
			commands = append(commands, cmd)
		}
	}

	for _, m := range braceRe.FindAllStringSubmatchIndex(script, -1) {
		raw := script[m[0]:m[1]]
		params := script[m[2]:m[3]]
		if cmd, ok := parseBraceParams(params); ok {
			cmd.Raw = raw
			cmd.Position = m[0]
			commands = append(commands, cmd)
		}
	}

	sort.SliceStable(commands, func(i, j int) bool {
		return commands[i].Position < commands[j].Position
	})

	// Drop commands nested inside an earlier accepted span.
	kept := commands[:0]
	lastEnd := 0
	for _, cmd := range commands {
		if cmd.Position < lastEnd {
			continue
		}
		kept = append(kept, cmd)
		lastEnd = cmd.End()
	}
	return kept
}

func parseBracketParams(params string) (Command, bool) {
	parts := strings.Split(params, ":")
	if len(parts) < 3 {
		return Command{}, false
	}
	kind, ok := parseKind(parts[0])
	if !ok {
		return Command{}, false
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || price <= 0 {
		return Command{}, false
	}
	// Description may itself contain colons; join the tail back.
	return Command{
		Kind:        kind,
		Price:       price,
		Description: strings.Join(parts[2:], ":"),
	}, true
}

func parseBraceParams(params string) (Command, bool) {
	parts := strings.Split(params, ":")
	if len(parts) < 2 {
		return Command{}, false
	}
	kind, ok := parseKind(parts[0])
	if !ok {
		return Command{}, false
	}

	cmd := Command{Kind: kind}
	for _, part := range parts[1:] {
		key, value, found := strings.Cut(part, "=")
		if !found || key == "" || value == "" {
			continue
		}
		switch key {
		case "price":
			if price, err := strconv.ParseFloat(value, 64); err == nil {
				cmd.Price = price
			}
		case "description":
			cmd.Description = value
		case "photos":
			if n, err := strconv.Atoi(value); err == nil {
				cmd.Photos = n
			}
		case "videos":
			if n, err := strconv.Atoi(value); err == nil {
				cmd.Videos = n
			}
		}
	}
	if cmd.Price <= 0 {
		return Command{}, false
	}
	return cmd, true
}

// ValidateCommand checks a single command string against both syntaxes and
// reports a human-readable reason when it is malformed. It is a pure syntax
// check used for authoring-time feedback; it never touches segmentation.
func ValidateCommand(raw string) error {
	if m := bracketRe.FindStringSubmatch(raw); m != nil {
		parts := strings.Split(m[1], ":")
		if len(parts) < 3 {
			return errors.New("format should be [PPV:type:price:description]")
		}
		if _, ok := parseKind(parts[0]); !ok {
			return errors.New("invalid type: must be photo, video, or bundle")
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || price <= 0 {
			return errors.New("price must be a number greater than 0")
		}
		return nil
	}

	m := braceRe.FindStringSubmatch(raw)
	if m == nil {
		return errors.New("invalid PPV command format: use [PPV:type:price:description] or {{PPV:TYPE:price=AMOUNT}}")
	}
	parts := strings.Split(m[1], ":")
	if len(parts) < 2 {
		return errors.New("missing required parameters")
	}
	if _, ok := parseKind(parts[0]); !ok {
		return errors.New("invalid type: must be PHOTO, VIDEO, or BUNDLE")
	}
	priceValue := ""
	for _, part := range parts[1:] {
		if key, value, found := strings.Cut(part, "="); found && key == "price" {
			priceValue = value
		}
	}
	if priceValue == "" {
		return errors.New("missing or invalid price parameter")
	}
	price, err := strconv.ParseFloat(priceValue, 64)
	if err != nil {
		return errors.New("missing or invalid price parameter")
	}
	if price <= 0 {
		return errors.New("price must be greater than 0")
	}
	return nil
}

// OfferMessage renders the text sent when a PPV segment is reached: type
// emoji, description or default copy, and the price line.
func (c Command) OfferMessage() string {
	var b strings.Builder

	switch c.Kind {
	case KindPhoto:
		b.WriteString("📸 ")
	case KindVideo:
		b.WriteString("🎥 ")
	case KindBundle:
		b.WriteString("🎁 ")
	}

	if c.Description != "" {
		b.WriteString(c.Description)
	} else {
		switch c.Kind {
		case KindPhoto:
			b.WriteString("Exclusive photo set")
		case KindVideo:
			b.WriteString("Exclusive video")
		case KindBundle:
			b.WriteString("Premium content bundle")
			if c.Photos > 0 && c.Videos > 0 {
				fmt.Fprintf(&b, " (%d photos + %d videos)", c.Photos, c.Videos)
			}
		}
	}

	fmt.Fprintf(&b, "\n\n💰 Unlock for $%s", formatPrice(c.Price))
	return b.String()
}

// UnlockMessage renders the text sent once the offer was paid.
func (c Command) UnlockMessage() string {
	switch c.Kind {
	case KindPhoto:
		return "🔓 Here are your exclusive photos! Enjoy babe 💋"
	case KindVideo:
		return "🔓 Video unlocked! Hope you love it 😘"
	default:
		return "🔓 Your premium bundle is ready! Thanks for your support 💕"
	}
}

// ReminderMessage renders the nudge sent when an offer is still unpaid.
func (c Command) ReminderMessage() string {
	return fmt.Sprintf(
		"Hey! Just wanted to remind you about the %s I sent earlier 😊\n\nIt's still available for $%s if you're interested! ✨",
		strings.ToLower(string(c.Kind)), formatPrice(c.Price))
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
