package control

import (
	"context"

	"carelink/config"
	"carelink/logger"
	"carelink/models"

	"go.uber.org/zap"
)

type Reader interface {
	Get(ctx context.Context, contactID string) (*models.ConversationControl, error)
}

// Decision é o resultado detalhado da consulta ao gate.
type Decision struct {
	Allowed bool   `json:"allowed"`
	State   string `json:"state"`
	// Degraded indica que o estado não pôde ser lido e a política de falha decidiu.
	Degraded bool   `json:"degraded"`
	Policy   string `json:"policy,omitempty"`
}

// Gate é consultado imediatamente antes de o bot responder. Nunca guarda cache: cada
// chamada relê o estado, porque o operador pode pausar entre a chegada e a resposta.
type Gate struct {
	reader Reader
	policy string
	logger *zap.Logger
}

func NewGate(reader Reader, policy string, logger *zap.Logger) *Gate {
	if policy != config.GATE_POLICY_CLOSED {
		policy = config.GATE_POLICY_OPEN
	}
	return &Gate{reader: reader, policy: policy, logger: logger}
}

func (g *Gate) Allow(ctx context.Context, contactID string) bool {
	return g.Check(ctx, contactID).Allowed
}

func (g *Gate) Check(ctx context.Context, contactID string) Decision {
	c, err := g.reader.Get(ctx, contactID)
	if err != nil {
		allowed := g.policy == config.GATE_POLICY_OPEN
		g.logger.Error("responder gate could not read control state",
			logger.Anomaly("control_read_failure"),
			zap.String("contact_id", contactID),
			zap.String("policy", g.policy),
			zap.Bool("allowed", allowed),
			zap.Error(err),
		)
		return Decision{Allowed: allowed, State: "UNKNOWN", Degraded: true, Policy: g.policy}
	}
	return Decision{Allowed: ShouldBotRespond(c), State: c.State()}
}

func (g *Gate) Policy() string {
	return g.policy
}
