// Package logger expone un logger Zap compartido por todo el cliente voci.
//
// # Decisiones
//
//   - Singleton: una sola instancia global, inicializada con Init() desde el cmd.
//   - Scoping por contexto: cada operación de sesión puede llevar su propio
//     logger con campos extra (identity_id, token_kind) vía ToContext/From.
//   - Entornos: "dev" escribe en consola con colores, "prod" en JSON.
//   - Tests: Replace(zap.NewNop()) silencia todo sin tocar el resto del código.
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.IdentityID(id.String()))
//	log.Info("identidad seleccionada")
package logger
