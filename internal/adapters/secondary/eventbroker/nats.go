package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

const (
	StreamName      = "CROSSPOST"
	SubjectPattern  = "crosspost.>"
	activityPrefix  = "crosspost.activity."
	SubjectUnlinked = "crosspost.account.unlinked"
)

// msgPublisher : la partie de jetstream.JetStream utilisée ici.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type NatsBroker struct {
	nc *nats.Conn
	js msgPublisher
}

var (
	_ ports.ActivityRecorder = (*NatsBroker)(nil)
	_ ports.EventPublisher   = (*NatsBroker)(nil)
)

// NewNatsBroker se connecte et s'assure que le Stream existe (idempotent).
func NewNatsBroker(url string) (*NatsBroker, error) {
	nc, err := nats.Connect(url, nats.Name("crosspost-proxy"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPattern},
		Storage:  jetstream.FileStorage,
		Replicas: 1,
		MaxAge:   30 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return &NatsBroker{nc: nc, js: js}, nil
}

func (n *NatsBroker) Close() {
	if n.nc != nil {
		_ = n.nc.Drain()
	}
}

// Ping sert au readiness check.
func (n *NatsBroker) Ping(context.Context) error {
	if n.nc == nil || !n.nc.IsConnected() {
		return fmt.Errorf("nats: not connected")
	}
	return nil
}

// ActivityEvent alimente le leaderboard (contrat implicite avec le consommateur).
type ActivityEvent struct {
	SignerID   string    `json:"signer_id"`
	Platform   string    `json:"platform"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	ResultID   string    `json:"result_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type AccountUnlinkedEvent struct {
	SignerID string    `json:"signer_id"`
	Platform string    `json:"platform"`
	UserID   string    `json:"user_id"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

func ActivitySubject(action domain.ActionType) string {
	return activityPrefix + string(action)
}

func (n *NatsBroker) TrackAction(ctx context.Context, a domain.Activity) error {
	event := ActivityEvent{
		SignerID:   a.SignerID,
		Platform:   string(a.Platform),
		UserID:     a.UserID,
		Action:     string(a.Action),
		ResultID:   a.ResultID,
		OccurredAt: a.OccurredAt,
	}
	return n.publish(ctx, ActivitySubject(a.Action), event)
}

func (n *NatsBroker) PublishAccountUnlinked(ctx context.Context, link domain.AccountLink, reason string) error {
	event := AccountUnlinkedEvent{
		SignerID: link.SignerID,
		Platform: string(link.Platform),
		UserID:   link.UserID,
		Reason:   reason,
		At:       time.Now().UTC(),
	}
	return n.publish(ctx, SubjectUnlinked, event)
}

func (n *NatsBroker) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// 👇 trace courante propagée dans les headers NATS
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	ack, err := n.js.PublishMsg(ctx, msg)
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	slog.Debug("📢 Event published", "subject", subject, "seq", ack.Sequence)
	return nil
}
