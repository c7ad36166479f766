package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"leaderbot/internal/transport"
)

type op int

const (
	opSend op = iota
	opEdit
)

// mapError translates telebot failures into the transport taxonomy. Editing
// a message with identical content is reported as success.
func mapError(o op, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if d, ok := floodWait(err); ok {
		return &transport.RateLimitError{RetryAfter: d}
	}

	var te *tele.Error
	if !errors.As(err, &te) {
		var ne net.Error
		if errors.As(err, &ne) {
			return fmt.Errorf("%w: %w", transport.ErrTransient, err)
		}
		desc := strings.ToLower(err.Error())
		if strings.Contains(desc, "message is not modified") && o == opEdit {
			return nil
		}
		if code, ok := codeFromText(desc); ok {
			return classify(o, code, desc, err)
		}
		return fmt.Errorf("%w: %w", transport.ErrTransient, err)
	}
	return classify(o, te.Code, strings.ToLower(te.Description+" "+te.Message), err)
}

func classify(o op, code int, desc string, err error) error {
	switch {
	case o == opEdit && strings.Contains(desc, "message is not modified"):
		return nil
	case code == 429:
		return &transport.RateLimitError{}
	case code >= 500:
		return fmt.Errorf("%w: %w", transport.ErrTransient, err)
	}

	if o == opSend {
		switch {
		case code == 403,
			strings.Contains(desc, "chat not found"),
			strings.Contains(desc, "thread not found"),
			strings.Contains(desc, "group chat was upgraded"),
			strings.Contains(desc, "not enough rights"):
			return fmt.Errorf("%w: %w", transport.ErrChatGone, err)
		}
		return fmt.Errorf("%w: %w", transport.ErrTransient, err)
	}

	switch {
	case code == 403:
		return fmt.Errorf("%w: %w", transport.ErrForbidden, err)
	case code == 404,
		strings.Contains(desc, "message to edit not found"),
		strings.Contains(desc, "message can't be edited"),
		strings.Contains(desc, "message_id_invalid"),
		strings.Contains(desc, "chat not found"):
		return fmt.Errorf("%w: %w", transport.ErrMessageNotFound, err)
	}
	return fmt.Errorf("%w: %w", transport.ErrTransient, err)
}

func floodWait(err error) (time.Duration, bool) {
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return time.Duration(fe.RetryAfter) * time.Second, true
	}
	var fp *tele.FloodError
	if errors.As(err, &fp) && fp != nil {
		return time.Duration(fp.RetryAfter) * time.Second, true
	}
	return 0, false
}

// codeFromText recovers the API code from errors telebot only renders as text,
// e.g. "telegram: Forbidden: bot was kicked (403)".
func codeFromText(desc string) (int, bool) {
	i := strings.LastIndex(desc, "(")
	j := strings.LastIndex(desc, ")")
	if i < 0 || j <= i+1 {
		return 0, false
	}
	var code int
	if _, err := fmt.Sscanf(desc[i+1:j], "%d", &code); err != nil || code < 100 || code > 599 {
		return 0, false
	}
	return code, true
}
