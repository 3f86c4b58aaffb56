// Package logx configures cronhook's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Sinks swappable at runtime (Service.Apply) so `cronhook dev` can pick up
//     logging changes from the config file without restarting
package logx
