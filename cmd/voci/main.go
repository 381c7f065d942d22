package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/voci/internal/app"
	"github.com/dropDatabas3/voci/internal/config"
	"github.com/dropDatabas3/voci/internal/observability/logger"
)

// cli es el estado compartido por los subcomandos de una invocación.
type cli struct {
	configPath  string
	envFile     string
	out         string // "text" | "json"
	dumpMetrics bool

	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	c *app.Container
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) (*cobra.Command, *cli) {
	cl := &cli{
		envFile: envOr("VOCI_ENV_FILE", ".env"),
		out:     envOr("VOCI_OUT", "text"),
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}

	root := &cobra.Command{
		Use:           "voci",
		Short:         "Client di Voci di Corridoio: sessione, identità e profilo",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cl.open(cmd.Context())
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&cl.configPath, "config", envOr("VOCI_CONFIG", ""), "File YAML di configurazione (env VOCI_CONFIG)")
	root.PersistentFlags().StringVar(&cl.envFile, "env-file", cl.envFile, "File .env da caricare se esiste")
	root.PersistentFlags().StringVar(&cl.out, "out", cl.out, "Formato di uscita: json|text")
	root.PersistentFlags().BoolVar(&cl.dumpMetrics, "metrics", false, "Stampa le metriche su stderr alla fine")

	root.AddCommand(
		cl.loginCmd(),
		cl.selectCmd(),
		cl.whoamiCmd(),
		cl.logoutCmd(),
		cl.refreshCmd(),
		cl.timetableCmd(),
		cl.imageCmd(),
		cl.registerCmd(),
		cl.checkUsernameCmd(),
		cl.classesCmd(),
		cl.notificationsCmd(),
		cl.tabCmd(),
	)
	return root, cl
}

// open carga .env y config y arma el contenedor.
func (cl *cli) open(ctx context.Context) error {
	if cl.envFile != "" {
		// un .env ausente no es error
		_ = godotenv.Load(cl.envFile)
	}
	cfg, err := config.Load(cl.configPath)
	if err != nil {
		return err
	}
	if cl.dumpMetrics {
		cfg.Metrics.Enabled = true
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, Output: cfg.Log.Output})

	cl.c, err = app.New(ctx, cfg)
	return err
}

func (cl *cli) close() error {
	if cl.c == nil {
		return nil
	}
	err := cl.c.Close()
	cl.flushNotifications()
	if cl.dumpMetrics {
		cl.writeMetrics()
	}
	_ = logger.Sync()
	return err
}

// run ejecuta la invocación y devuelve el exit code. El contenedor se cierra
// aunque el comando falle, para no perder notificaciones ni escrituras.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root, cl := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := cl.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, describe(err))
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
