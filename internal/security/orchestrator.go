// Package security composes the rate limiter, input validator, and
// data masker into a single gate in front of every chat message. The
// pipeline per message is fixed: RateCheck, Validate, SafetyCheck,
// Mask, Dispatch; any stage may short-circuit with a structured
// rejection that never reaches persistence or the model.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chattrain/chattrain/internal/audit"
	"github.com/chattrain/chattrain/internal/chat"
	"github.com/chattrain/chattrain/internal/errors"
	"github.com/chattrain/chattrain/internal/logging"
	"github.com/chattrain/chattrain/internal/masking"
	"github.com/chattrain/chattrain/internal/ratelimit"
	"github.com/chattrain/chattrain/internal/scenario"
	"github.com/chattrain/chattrain/internal/validation"
)

// MessageType is the closed set of message kinds the orchestrator
// dispatches on. Unrecognized wire values map to MessageUnknown.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageSessionStart
	MessageUserMessage
	MessageAssistantMessage
)

// ParseMessageType maps a wire type string onto the closed enum.
func ParseMessageType(s string) MessageType {
	switch s {
	case "session_start":
		return MessageSessionStart
	case "user_message":
		return MessageUserMessage
	case "assistant_message":
		return MessageAssistantMessage
	default:
		return MessageUnknown
	}
}

// String returns the wire representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageSessionStart:
		return "session_start"
	case MessageUserMessage:
		return "user_message"
	case MessageAssistantMessage:
		return "assistant_message"
	default:
		return "unknown"
	}
}

// Envelope is the wire shape of an inbound chat message.
type Envelope struct {
	Type     string                 `json:"type"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Outbound is the wire shape of messages sent back to a connection.
type Outbound struct {
	Type      string                 `json:"type"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	MessageID string                 `json:"message_id,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Sender is one connection's outbound path.
type Sender interface {
	Send(ctx context.Context, payload interface{}) error
}

// Broadcaster fans a payload out to every connection of a session.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID string, payload interface{})
}

// ScenarioSource resolves the scenario attached to a session.
type ScenarioSource interface {
	ScenarioForSession(sessionID string) *scenario.Scenario
}

// Result is the terminal outcome of the pipeline for one message.
type Result struct {
	Allowed       bool
	Content       string
	Rejection     *errors.Rejection
	RateDecision  ratelimit.Decision
	Report        validation.Report
	SafeForModel  bool
	SafetyReasons []string
	MaskingLog    []masking.LogEntry
}

// Orchestrator owns no pipeline state of its own; it wires the three
// security components, the audit log, and the collaborators together.
type Orchestrator struct {
	limiter     *ratelimit.Limiter
	validator   *validation.Validator
	masker      *masking.Masker
	auditLog    *audit.Log
	store       chat.MessageStore
	model       chat.ModelClient
	scenarios   ScenarioSource
	broadcaster Broadcaster
	logger      logging.Logger
}

// Options carries the orchestrator's injected dependencies. Limiter,
// validator, masker, and audit log are required; collaborators may be
// nil, disabling the corresponding dispatch step.
type Options struct {
	Limiter     *ratelimit.Limiter
	Validator   *validation.Validator
	Masker      *masking.Masker
	AuditLog    *audit.Log
	Store       chat.MessageStore
	Model       chat.ModelClient
	Scenarios   ScenarioSource
	Broadcaster Broadcaster
	Logger      logging.Logger
}

// New creates an orchestrator from explicitly injected components.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Orchestrator{
		limiter:     opts.Limiter,
		validator:   opts.Validator,
		masker:      opts.Masker,
		auditLog:    opts.AuditLog,
		store:       opts.Store,
		model:       opts.Model,
		scenarios:   opts.Scenarios,
		broadcaster: opts.Broadcaster,
		logger:      logger.WithComponent("security"),
	}
}

// Process runs the security pipeline for one message and returns the
// terminal outcome. It never returns an error: every failure is folded
// into a Rejection, and panics fail closed as SECURITY_ERROR.
func (o *Orchestrator) Process(ctx context.Context, userID string, env Envelope) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.NewSecurityError("pipeline panic", fmt.Errorf("%v", r))
			o.logger.Error(ctx, err, "security pipeline panicked", "user_id", userID)
			result = o.reject(ctx, userID, env, err)
		}
	}()

	decision, err := o.limiter.Check(userID, ratelimit.EndpointWebSocketMessage)
	if err != nil {
		return o.reject(ctx, userID, env, err)
	}

	sanitized, report, err := o.validator.Validate(env.Content, env.Metadata)
	if err != nil {
		return o.reject(ctx, userID, env, err)
	}

	safe, safetyReasons := o.validator.IsSafeForModel(sanitized)

	masked, maskingLog := o.masker.Mask(sanitized, true)

	result = Result{
		Allowed:       true,
		Content:       masked,
		RateDecision:  decision,
		Report:        report,
		SafeForModel:  safe,
		SafetyReasons: safetyReasons,
		MaskingLog:    maskingLog,
	}

	o.auditLog.Append(audit.EventMessageProcessed, userID, map[string]interface{}{
		"message_type":      env.Type,
		"tokens_remaining":  decision.TokensRemaining,
		"validation_report": report,
		"masking_log":       maskingLog,
		"safe_for_model":    safe,
		"safety_warnings":   safetyReasons,
	})

	return result
}

// reject folds a pipeline error into a terminal rejection and records
// the audit event. Nothing downstream of the failed stage runs.
func (o *Orchestrator) reject(ctx context.Context, userID string, env Envelope, err error) Result {
	rejection := errors.ToRejection(err)

	o.auditLog.Append(audit.EventMessageRejected, userID, map[string]interface{}{
		"message_type": env.Type,
		"error_code":   rejection.ErrorCode,
	})
	o.logger.Warn(ctx, err, "message rejected",
		"user_id", userID,
		"error_code", rejection.ErrorCode)

	return Result{Rejection: &rejection}
}

// Handle is the orchestrator's entry point for one raw inbound frame.
// It parses the envelope, runs the pipeline, and dispatches the masked
// content to the handler for the declared message type. All errors are
// reported to the sender; none propagate.
func (o *Orchestrator) Handle(ctx context.Context, sender Sender, sessionID, userID string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		o.sendRejection(ctx, sender, errors.ToRejection(errors.NewValidationError("malformed message envelope")))
		return
	}

	if warnings, err := o.validator.ValidateEnvelope(validation.EnvelopeFields{
		SessionID: sessionID,
		UserID:    userID,
		Type:      env.Type,
	}); err != nil {
		o.sendRejection(ctx, sender, errors.ToRejection(err))
		return
	} else if len(warnings) > 0 {
		o.logger.Warn(ctx, nil, "envelope warnings", "user_id", userID, "warnings", warnings)
	}

	result := o.Process(ctx, userID, env)
	if !result.Allowed {
		o.sendRejection(ctx, sender, *result.Rejection)
		return
	}

	switch ParseMessageType(env.Type) {
	case MessageUserMessage:
		o.handleUserMessage(ctx, sender, sessionID, userID, env, result)
	case MessageAssistantMessage:
		o.handleAssistantMessage(ctx, sessionID, env, result)
	case MessageSessionStart:
		o.send(ctx, sender, Outbound{
			Type:      "session_start",
			Content:   "Secure session started successfully",
			Timestamp: time.Now().UTC(),
		})
	default:
		o.handleUnknownMessage(ctx, sender, env)
	}
}

// handleUserMessage persists the masked content, acknowledges the
// sender, and dispatches the model call without holding any pipeline
// state. The model reply is posted back on the same connection's
// outbound path.
func (o *Orchestrator) handleUserMessage(ctx context.Context, sender Sender, sessionID, userID string, env Envelope, result Result) {
	messageID, err := o.store.Save(ctx, sessionID, "user", result.Content, env.Metadata)
	if err != nil {
		o.logger.Error(ctx, err, "failed to persist user message", "session_id", sessionID)
		o.sendError(ctx, sender, "Error processing your message. Please try again.")
		return
	}

	o.send(ctx, sender, Outbound{
		Type:      "message_received",
		Content:   "Message received and processed securely",
		Timestamp: time.Now().UTC(),
		MessageID: messageID,
	})

	if !result.SafeForModel {
		o.send(ctx, sender, Outbound{
			Type:      "safety_warning",
			Content:   "Your message contains content that cannot be processed by our AI system.",
			Warnings:  result.SafetyReasons,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	if o.model == nil {
		return
	}

	// The model call is long-latency; run it detached so this
	// connection's worker is free for nothing but its own queue and
	// other connections are unaffected. ctx is the connection's
	// context, so the task dies with the connection.
	masked := result.Content
	go o.generateReply(ctx, sender, sessionID, masked)
}

func (o *Orchestrator) generateReply(ctx context.Context, sender Sender, sessionID, maskedContent string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, fmt.Errorf("%v", r), "model dispatch panicked", "session_id", sessionID)
		}
	}()

	recent, err := o.store.RecentMessages(ctx, sessionID, 5)
	if err != nil {
		o.logger.Error(ctx, err, "failed to load recent messages", "session_id", sessionID)
		recent = nil
	}

	var sc *scenario.Scenario
	if o.scenarios != nil {
		sc = o.scenarios.ScenarioForSession(sessionID)
	}

	response, err := o.model.Generate(ctx, maskedContent, recent, sc)
	if err != nil {
		o.logger.Error(ctx, err, "model generation failed", "session_id", sessionID)
		o.sendError(ctx, sender, "The assistant is temporarily unavailable. Please try again.")
		return
	}

	messageID, err := o.store.Save(ctx, sessionID, "assistant", response.Content, response.Metadata)
	if err != nil {
		o.logger.Error(ctx, err, "failed to persist assistant message", "session_id", sessionID)
	}

	o.send(ctx, sender, Outbound{
		Type:      "assistant_message",
		Content:   response.Content,
		Timestamp: time.Now().UTC(),
		MessageID: messageID,
		Metadata:  response.Metadata,
	})
}

// handleAssistantMessage persists and rebroadcasts an assistant turn to
// every connection of the session.
func (o *Orchestrator) handleAssistantMessage(ctx context.Context, sessionID string, env Envelope, result Result) {
	messageID, err := o.store.Save(ctx, sessionID, "assistant", result.Content, env.Metadata)
	if err != nil {
		o.logger.Error(ctx, err, "failed to persist assistant message", "session_id", sessionID)
		return
	}

	if o.broadcaster != nil {
		o.broadcaster.Broadcast(ctx, sessionID, Outbound{
			Type:      "assistant_message",
			Content:   result.Content,
			Timestamp: time.Now().UTC(),
			MessageID: messageID,
			Metadata:  env.Metadata,
		})
	}
}

// handleUnknownMessage replies with an error; it persists nothing and
// never reaches the model.
func (o *Orchestrator) handleUnknownMessage(ctx context.Context, sender Sender, env Envelope) {
	o.send(ctx, sender, Outbound{
		Type:      "error",
		Content:   fmt.Sprintf("Unknown message type: %s", env.Type),
		Timestamp: time.Now().UTC(),
	})
}

func (o *Orchestrator) sendRejection(ctx context.Context, sender Sender, rejection errors.Rejection) {
	o.send(ctx, sender, Outbound{
		Type:      rejection.Type,
		Content:   rejection.Content,
		ErrorCode: rejection.ErrorCode,
		Timestamp: time.Now().UTC(),
	})
}

func (o *Orchestrator) sendError(ctx context.Context, sender Sender, message string) {
	o.send(ctx, sender, Outbound{
		Type:      "error",
		Content:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (o *Orchestrator) send(ctx context.Context, sender Sender, payload Outbound) {
	if err := sender.Send(ctx, payload); err != nil {
		o.logger.Warn(ctx, err, "failed to send outbound message", "type", payload.Type)
	}
}
