// Package alerts composes and sends the daily email digest: a ranking of the
// best risk-adjusted assets over the configured window, plus a fixed
// disclaimer. Delivery is optional; missing SMTP settings produce a named
// skip instead of an error.
package alerts

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/analytics"
)

const rankingSize = 10

const disclaimer = "Este mensaje es educativo e informativo. No constituye asesoramiento financiero. " +
	"Cualquier decisión real debe ser verificada por el usuario y, si corresponde, por un asesor matriculado."

// Ranker produces the asset ranking included in the digest.
type Ranker interface {
	RankAssets(windowDays, limit int) ([]analytics.AssetMetrics, error)
}

// SendFunc matches smtp.SendMail, injectable for tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Result reports the outcome of one alert run.
type Result struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// Service composes and delivers the daily alert.
type Service struct {
	cfg    config.AlertConfig
	ranker Ranker
	send   SendFunc
	log    zerolog.Logger

	now func() time.Time
}

// NewService creates a new alerts service
func NewService(cfg config.AlertConfig, ranker Ranker, log zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		ranker: ranker,
		send:   smtp.SendMail,
		log:    log.With().Str("service", "alerts").Logger(),
		now:    time.Now,
	}
}

func (s *Service) smtpConfigured() bool {
	return s.cfg.SMTPHost != "" && s.cfg.SMTPUser != "" && s.cfg.SMTPPassword != ""
}

// SendDaily composes the digest and delivers it. With dryRun the message is
// composed and validated but not sent; the body is returned for inspection.
// Missing recipient or SMTP settings return a non-sent result with the named
// gap, never an error.
func (s *Service) SendDaily(dryRun bool) (Result, error) {
	if s.cfg.To == "" {
		return Result{Message: "ALERT_EMAIL_TO no configurado"}, nil
	}
	if !s.smtpConfigured() {
		return Result{Message: "Config SMTP incompleta (EMAIL_HOST/USER/PASSWORD)"}, nil
	}

	windowDays := s.cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 90
	}

	top, err := s.ranker.RankAssets(windowDays, rankingSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build daily alert: %w", err)
	}

	now := s.now()
	subject := fmt.Sprintf("[invpanel-pro] Alerta diaria (%s)", now.Format("2006-01-02 15:04"))
	body := composeBody(top, windowDays, now)

	if dryRun {
		return Result{Sent: true, Message: "DRY RUN OK (no se envió email).\n\n" + body}, nil
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.SMTPUser
	}

	msg := buildMessage(from, s.cfg.To, subject, body)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)

	if err := s.send(addr, auth, from, []string{s.cfg.To}, msg); err != nil {
		return Result{}, fmt.Errorf("failed to send daily alert: %w", err)
	}

	s.log.Info().Str("to", s.cfg.To).Int("assets", len(top)).Msg("Daily alert sent")
	return Result{Sent: true, Message: "Enviado a " + s.cfg.To}, nil
}

func composeBody(top []analytics.AssetMetrics, windowDays int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ranking de activos (ventana %d días, generado %s)\n\n", windowDays, now.Format("2006-01-02 15:04"))

	if len(top) == 0 {
		b.WriteString("Sin series suficientes para calcular métricas. Cargue históricos de precios.\n")
	}
	for i, m := range top {
		fmt.Fprintf(&b, "%2d. %-12s sharpe=%.2f retorno=%+.2f%% vol=%.2f%% maxDD=%.2f%% (n=%d)\n",
			i+1, m.Symbol, m.Sharpe, m.PeriodReturn*100, m.VolAnn*100, m.MaxDrawdown*100, m.N)
	}

	b.WriteString("\nProcedimiento sugerido:\n")
	b.WriteString("1. Revisar el ranking y las métricas de cada activo.\n")
	b.WriteString("2. Contrastar con los registros abiertos en Oportunidades.\n")
	b.WriteString("3. Registrar cualquier decisión con su nota correspondiente.\n")

	b.WriteString("\n" + disclaimer + "\n")
	return b.String()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
