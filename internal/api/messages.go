package api

import (
	"time"

	celldockerrors "celldock/internal/errors"
	"celldock/internal/kernel"
)

const (
	messageTypeStream       = "stream"
	messageTypeExecuteReply = "execute_reply"
	messageTypeExecute      = "execute"
	messageTypeError        = "error"
)

// StreamMessage carries one relayed chunk of build output
type StreamMessage struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// PayloadItem is an instruction for the client, such as replacing the cell
type PayloadItem struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// ErrorBody is the error part of a reply
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExecuteReplyMessage ends every execution
type ExecuteReplyMessage struct {
	Type    string        `json:"type"`
	Status  string        `json:"status"`
	Display string        `json:"display,omitempty"`
	Payload []PayloadItem `json:"payload,omitempty"`
	ImageID *string       `json:"image_id"`
	Stage   *StageJSON    `json:"stage,omitempty"`
	Error   *ErrorBody    `json:"error,omitempty"`
}

// ErrorMessage reports a protocol problem on the websocket
type ErrorMessage struct {
	Type  string    `json:"type"`
	Error ErrorBody `json:"error"`
}

// ClientMessage is what websocket clients send
type ClientMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// StageJSON is the wire form of a committed stage
type StageJSON struct {
	Position     int       `json:"position"`
	BaseImageID  *string   `json:"base_image_id"`
	ImageID      string    `json:"image_id"`
	Instructions []string  `json:"instructions"`
	CommittedAt  time.Time `json:"committed_at"`
}

func newStreamMessage(text string) StreamMessage {
	return StreamMessage{Type: messageTypeStream, Name: "stdout", Text: text}
}

func stageJSON(stage kernel.BuildStage) StageJSON {
	return StageJSON{
		Position:     stage.Position,
		BaseImageID:  optionalString(stage.BaseImageID),
		ImageID:      stage.ImageID,
		Instructions: stage.Instructions,
		CommittedAt:  stage.CommittedAt,
	}
}

// replyMessage converts an execution outcome. checkpoint is used when the
// execution failed and therefore left the chain untouched.
func replyMessage(reply *kernel.Reply, err error, checkpoint string) ExecuteReplyMessage {
	if err != nil {
		body := ErrorBody{Code: string(celldockerrors.ErrorCodeInternal), Message: err.Error()}
		if celldockErr, ok := celldockerrors.AsCelldockError(err); ok {
			body = ErrorBody{Code: string(celldockErr.Code), Message: celldockErr.Display()}
		}
		return ExecuteReplyMessage{
			Type:    messageTypeExecuteReply,
			Status:  string(kernel.StatusError),
			ImageID: optionalString(checkpoint),
			Error:   &body,
		}
	}

	msg := ExecuteReplyMessage{
		Type:    messageTypeExecuteReply,
		Status:  string(reply.Status),
		Display: reply.Display,
		ImageID: optionalString(reply.ImageID),
	}
	if reply.NextInput != "" {
		msg.Payload = []PayloadItem{{Source: "set_next_input", Text: reply.NextInput}}
	}
	if reply.Stage != nil {
		stage := stageJSON(*reply.Stage)
		msg.Stage = &stage
	}
	if reply.Error != nil {
		msg.Error = &ErrorBody{Code: string(reply.Error.Code), Message: reply.Error.Display()}
	}
	return msg
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// emitWriter turns each Write into one stream message
type emitWriter struct {
	emit func(any) error
}

func (w emitWriter) Write(p []byte) (int, error) {
	if err := w.emit(newStreamMessage(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
