// Package logging provides structured logging with OpenTelemetry integration.
//
// It wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic context field injection (trace_id, session, patient ref, request)
//   - Redaction of credential and patient-identifying fields
//   - Level-aware sampling (errors never sampled)
//
// Create a logger from config:
//
//	cfg, err := logging.FromAppConfig(appCfg.Logging)
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	logger.Info(ctx, "chat handled", zap.Duration("latency", d))
//
// Correlation fields appear on every entry made with that context:
//
//	{"ts":"...","level":"info","msg":"chat handled","session.id":"...","latency":"120ms"}
//
// Redaction is on by default. Fields named like credentials or patient
// identity (password, token, patient_name, email, ...) and values matching
// token/email patterns are masked before reaching any sink. Use
// logging.Secret or logging.RedactedString when a value must be logged
// deliberately.
package logging
