package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/papo/internal/notify"
	"github.com/MrWong99/papo/internal/onboarding"
	"github.com/MrWong99/papo/pkg/audio"
)

const (
	// outboundBuffer holds events waiting for the writer. Volume and
	// narration audio are dropped when it is full; anything else closes the
	// session as a stalled client.
	outboundBuffer = 256
	writeTimeout   = 10 * time.Second

	defaultInputRate = 16000
)

var errSlowClient = errors.New("gateway: client is not reading")

type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// session is one connected onboarding client. It is the controller's
// listener, notification sink and narration audio sink; all three only
// enqueue frames for the writer goroutine.
type session struct {
	id   string
	conn *websocket.Conn
	hub  *audio.Hub
	ctrl *onboarding.Controller
	log  *slog.Logger
	out  chan outbound

	ctx    context.Context
	cancel context.CancelCauseFunc

	// Read-loop state.
	greeted  bool
	codec    string
	inFormat audio.Format
	decoder  *audio.OpusDecoder
}

var (
	_ onboarding.Listener = (*session)(nil)
	_ notify.Sink         = (*session)(nil)
	_ audio.Sink          = (*session)(nil)
)

func newSession(ctx context.Context, id string, conn *websocket.Conn, hub *audio.Hub, log *slog.Logger) *session {
	ctx, cancel := context.WithCancelCause(ctx)
	return &session{
		id:       id,
		conn:     conn,
		hub:      hub,
		log:      log,
		out:      make(chan outbound, outboundBuffer),
		ctx:      ctx,
		cancel:   cancel,
		codec:    CodecPCM16,
		inFormat: audio.Format{SampleRate: defaultInputRate, Channels: 1},
	}
}

// ─── Outbound ────────────────────────────────────────────────────────────────

func (s *session) send(typ string, data any, lossy bool) {
	b, err := json.Marshal(Event{Type: typ, Data: data})
	if err != nil {
		s.log.Error("gateway: encode event", "type", typ, "err", err)
		return
	}
	s.enqueue(outbound{typ: websocket.MessageText, data: b}, lossy)
}

func (s *session) enqueue(m outbound, lossy bool) bool {
	select {
	case s.out <- m:
		return true
	case <-s.ctx.Done():
		return false
	default:
	}
	if !lossy {
		s.log.Warn("gateway: outbound queue full, closing session")
		s.cancel(errSlowClient)
	}
	return false
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(wctx, m.typ, m.data)
			cancel()
			if err != nil {
				return fmt.Errorf("gateway: write: %w", err)
			}
		}
	}
}

// StepChanged implements [onboarding.Listener].
func (s *session) StepChanged(snap onboarding.Snapshot) { s.send(EvStep, snap, false) }

// RecordingChanged implements [onboarding.Listener].
func (s *session) RecordingChanged(on bool) { s.send(EvRecording, Recording{On: on}, false) }

// Transcript implements [onboarding.Listener].
func (s *session) Transcript(text string, final bool) {
	s.send(EvTranscript, Transcript{Text: text, Final: final}, !final)
}

// Volume implements [onboarding.Listener].
func (s *session) Volume(level uint8) { s.send(EvVolume, Volume{Level: level}, true) }

// Validation implements [onboarding.Listener].
func (s *session) Validation(msg string) { s.send(EvValidation, Validation{Message: msg}, false) }

// UserUpdated implements [onboarding.Listener].
func (s *session) UserUpdated(u onboarding.UserData) { s.send(EvUser, u, false) }

// Navigate implements [onboarding.Listener].
func (s *session) Navigate(route string) { s.send(EvNavigate, Navigate{Route: route}, false) }

// Notify implements [notify.Sink].
func (s *session) Notify(n notify.Notification) { s.send(EvNotification, n, false) }

// WriteAudio implements [audio.Sink] for narration. Chunks are dropped
// rather than queued behind a slow client.
func (s *session) WriteAudio(chunk []byte, _ audio.Format) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.enqueue(outbound{typ: websocket.MessageBinary, data: chunk}, true)
	return nil
}

func (s *session) complete(c onboarding.Completion) { s.send(EvComplete, c, false) }

func (s *session) protocolError(format string, args ...any) {
	s.send(EvError, ErrorPayload{Message: fmt.Sprintf(format, args...)}, false)
}

// ─── Inbound ─────────────────────────────────────────────────────────────────

func (s *session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			s.audio(data)
		case websocket.MessageText:
			var m ClientMessage
			if err := json.Unmarshal(data, &m); err != nil {
				s.protocolError("malformed message: %v", err)
				continue
			}
			s.handle(m)
		}
	}
}

func (s *session) audio(data []byte) {
	if s.codec == CodecOpus {
		f, err := s.decoder.Decode(data)
		if err != nil {
			s.log.Debug("gateway: dropping undecodable packet", "err", err)
			return
		}
		s.hub.Push(f)
		return
	}
	s.hub.Push(audio.Frame{
		Data:       data,
		SampleRate: s.inFormat.SampleRate,
		Channels:   s.inFormat.Channels,
	})
}

func (s *session) handle(m ClientMessage) {
	var err error
	switch m.Type {
	case MsgHello:
		if err = s.hello(m); err == nil && !s.greeted {
			s.greeted = true
			s.ctrl.Begin()
		}
	case MsgMic:
		s.hub.SetPermission(audio.ParsePermission(m.Mic))
	case MsgStart:
		err = s.ctrl.StartRecording()
	case MsgStop:
		s.ctrl.StopRecording()
	case MsgCancel:
		s.ctrl.Cancel()
	case MsgBack:
		s.ctrl.Retreat()
	case MsgSay:
		err = s.ctrl.SubmitText(m.Text)
	case MsgPhoneInput:
		s.send(EvPhone, Phone{Value: s.ctrl.PhoneInput(m.Value)}, false)
	case MsgSubmitPhone:
		_, err = s.ctrl.SubmitPhone(m.Value)
	case MsgConfirm:
		err = s.ctrl.Confirm(m.Text)
	case MsgReset:
		s.ctrl.Reset()
	default:
		err = fmt.Errorf("unknown message type %q", m.Type)
	}
	if err != nil {
		s.protocolError("%s: %v", m.Type, err)
	}
}

// hello applies the client's capture settings.
func (s *session) hello(m ClientMessage) error {
	channels := m.Channels
	if channels == 0 {
		channels = 1
	}
	if channels != 1 && channels != 2 {
		return fmt.Errorf("unsupported channel count %d", channels)
	}

	switch m.Codec {
	case "", CodecPCM16:
		rate := m.SampleRate
		if rate == 0 {
			rate = defaultInputRate
		}
		if rate < 8000 || rate > 48000 {
			return fmt.Errorf("unsupported sample rate %d", rate)
		}
		s.codec = CodecPCM16
		s.decoder = nil
		s.inFormat = audio.Format{SampleRate: rate, Channels: channels}
	case CodecOpus:
		dec, err := audio.NewOpusDecoder(channels)
		if err != nil {
			return err
		}
		s.codec = CodecOpus
		s.decoder = dec
		s.inFormat = audio.Format{SampleRate: audio.OpusSampleRate, Channels: channels}
	default:
		return fmt.Errorf("unsupported codec %q", m.Codec)
	}

	if m.Mic != "" {
		s.hub.SetPermission(audio.ParsePermission(m.Mic))
	}
	s.log.Debug("gateway: client hello", "codec", s.codec, "format", s.inFormat, "mic", s.hub.Permission())
	return nil
}
