package controllers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fanflowhq/fanflow/internal/pkg/ppv"
)

// ScriptController serves authoring-time feedback for the script editor:
// command validation and a segment preview of what a run would send.
type ScriptController struct {
	validate *validator.Validate
}

// NewScriptController creates the controller with its request validator.
func NewScriptController() *ScriptController {
	return &ScriptController{validate: validator.New()}
}

type validateCommandRequest struct {
	Command string `json:"command" validate:"required"`
}

// HandleValidateCommand checks a single PPV command string and reports a
// human-readable reason when it is malformed.
func (sc *ScriptController) HandleValidateCommand(c *fiber.Ctx) error {
	var req validateCommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := sc.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "command is required"})
	}

	if err := ppv.ValidateCommand(req.Command); err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"valid": false, "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"valid": true})
}

type previewScriptRequest struct {
	Script string `json:"script" validate:"required"`
}

type previewSegment struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	Kind        string  `json:"kind,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Description string  `json:"description,omitempty"`
}

// HandlePreviewScript splits a script body into the segment sequence a run
// would walk, so the editor can show offers and plain messages in order.
func (sc *ScriptController) HandlePreviewScript(c *fiber.Ctx) error {
	var req previewScriptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := sc.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "script is required"})
	}

	segments := ppv.SplitSegments(req.Script)
	out := make([]previewSegment, 0, len(segments))
	for _, seg := range segments {
		p := previewSegment{Type: string(seg.Type), Text: seg.Text}
		if seg.Command != nil {
			p.Kind = string(seg.Command.Kind)
			p.Price = seg.Command.Price
			p.Description = seg.Command.Description
		}
		out = append(out, p)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"segments": out})
}
