package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/notify"
	"github.com/dropDatabas3/voci/internal/validation"
)

var errNoSession = errors.New("nessuna sessione salvata: esegui `voci login`")

// restore recupera la sesión persistida y espera la revalidación.
func (cl *cli) restore(ctx context.Context) error {
	if !cl.c.Session.Reinitialize(ctx) {
		return errNoSession
	}
	cl.c.Wait()
	if !cl.c.Session.IsAuthenticated() {
		return errNoSession
	}
	return nil
}

// readLine pide un valor por stdin (prompt a stderr).
func (cl *cli) readLine(prompt string) (string, error) {
	fmt.Fprint(cl.stderr, prompt)
	line, err := bufio.NewReader(cl.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("lettura input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (cl *cli) password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("VOCI_PASSWORD"); v != "" {
		return v, nil
	}
	return cl.readLine("Password: ")
}

// =================================================================================
// SESIÓN
// =================================================================================

func (cl *cli) loginCmd() *cobra.Command {
	var email, pass, identity string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Accedi e seleziona l'identità",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if email == "" {
				return fmt.Errorf("--email è obbligatorio")
			}
			pw, err := cl.password(pass)
			if err != nil {
				return err
			}
			out, err := cl.c.Session.Login(ctx, email, pw)
			if err != nil {
				return err
			}
			if out.Selected != nil {
				return cl.printState(cl.c.Session.State())
			}

			ids := out.Identities()
			target, err := cl.pickIdentity(ids, identity)
			if err != nil {
				return err
			}
			if _, err := cl.c.Session.SelectIdentity(ctx, target); err != nil {
				return err
			}
			return cl.printState(cl.c.Session.State())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email dell'account")
	cmd.Flags().StringVar(&pass, "password", "", "Password (env VOCI_PASSWORD, altrimenti viene chiesta)")
	cmd.Flags().StringVar(&identity, "identity", "", "ID o username dell'identità da usare se ce n'è più di una")
	return cmd
}

// pickIdentity resuelve --identity (id o username) o pregunta por stdin.
func (cl *cli) pickIdentity(ids []*domain.Identity, want string) (uuid.UUID, error) {
	if want != "" {
		for _, i := range ids {
			if i.ID.String() == want || strings.EqualFold(i.Username, want) {
				return i.ID, nil
			}
		}
		return uuid.Nil, fmt.Errorf("identità %q non trovata", want)
	}

	for n, i := range ids {
		fmt.Fprintf(cl.stderr, "%d) %s %s (%s)\n", n+1, i.Username, i.DisplayName(), i.Role().Label())
	}
	choice, err := cl.readLine("Scegli l'identità: ")
	if err != nil {
		return uuid.Nil, err
	}
	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(ids) {
		return uuid.Nil, fmt.Errorf("scelta non valida %q", choice)
	}
	return ids[n-1].ID, nil
}

func (cl *cli) selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Passa a un'altra identità dello stesso account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("id non valido %q", args[0])
			}
			if err := cl.restore(cmd.Context()); err != nil {
				return err
			}
			if _, err := cl.c.Session.SelectIdentity(cmd.Context(), id); err != nil {
				return err
			}
			return cl.printState(cl.c.Session.State())
		},
	}
}

func (cl *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Mostra la sessione salvata",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.restore(cmd.Context()); err != nil && !errors.Is(err, errNoSession) {
				return err
			}
			return cl.printState(cl.c.Session.State())
		},
	}
}

func (cl *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Esci e cancella i dati locali",
		RunE: func(cmd *cobra.Command, args []string) error {
			// restaura lo persistido para que logout limpie también la imagen local
			cl.c.Session.Reinitialize(cmd.Context())
			cl.c.Wait()
			cl.c.Session.Logout(cmd.Context())
			return cl.printState(cl.c.Session.State())
		},
	}
}

func (cl *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ricarica i dati dell'identità corrente dal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.restore(cmd.Context()); err != nil {
				return err
			}
			if err := cl.c.Session.RefreshCurrentIdentity(cmd.Context()); err != nil {
				return err
			}
			return cl.printState(cl.c.Session.State())
		},
	}
}

func (cl *cli) timetableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timetable",
		Short: "Mostra l'orario della classe",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.restore(cmd.Context()); err != nil {
				return err
			}
			t, err := cl.c.Session.Timetable(cmd.Context())
			if err != nil {
				return err
			}
			return cl.printTimetable(t)
		},
	}
}

// =================================================================================
// IMAGEN DE PERFIL
// =================================================================================

func (cl *cli) imageCmd() *cobra.Command {
	image := &cobra.Command{Use: "image", Short: "Immagine del profilo"}

	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Scarica l'immagine nella cache locale e ne stampa il percorso",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.restore(cmd.Context()); err != nil {
				return err
			}
			if err := cl.c.Session.FetchProfileImage(cmd.Context()); err != nil {
				return err
			}
			cur := cl.c.Session.Identity()
			if _, ok := cl.c.Images.Load(cur.ID); !ok {
				fmt.Fprintln(cl.stdout, "nessuna immagine")
				return nil
			}
			writeKV(cl.stdout, "file", cl.c.Images.Path(cur.ID))
			return nil
		},
	}

	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Carica una nuova immagine (compressa se troppo grande)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := cl.restore(cmd.Context()); err != nil {
				return err
			}
			done, err := cl.c.Session.SetProfileImage(cmd.Context(), data)
			if err != nil {
				return err
			}
			if !done {
				return errors.New("un'altra modifica dell'immagine è in corso")
			}
			fmt.Fprintln(cl.stdout, "immagine caricata")
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Rimuove l'immagine del profilo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.restore(cmd.Context()); err != nil {
				return err
			}
			done, err := cl.c.Session.RemoveProfileImage(cmd.Context())
			if err != nil {
				return err
			}
			if !done {
				return errors.New("un'altra modifica dell'immagine è in corso")
			}
			fmt.Fprintln(cl.stdout, "immagine rimossa")
			return nil
		},
	}

	image.AddCommand(fetch, upload, del)
	return image
}

// =================================================================================
// REGISTRO
// =================================================================================

func (cl *cli) registerCmd() *cobra.Command {
	var data domain.RegistrationData
	var class string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Crea un nuovo account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for flag, v := range map[string]string{
				"--name": data.Name, "--surname": data.Surname,
				"--username": data.Username, "--email": data.Email,
			} {
				if strings.TrimSpace(v) == "" {
					return fmt.Errorf("%s è obbligatorio", flag)
				}
			}
			if err := validation.Registration(data.Normalize()); err != nil {
				return err
			}
			pw, err := cl.password(data.Password)
			if err != nil {
				return err
			}
			data.Password = pw

			if class != "" {
				id, err := cl.resolveClass(ctx, class)
				if err != nil {
					return err
				}
				data.ClassID = &id
			}

			out, err := cl.c.Session.Register(ctx, data)
			if err != nil {
				return err
			}
			if cl.jsonOut() {
				return cl.printJSON(out)
			}
			if !out.Created() {
				var taken []string
				if out.UsernameTaken {
					taken = append(taken, "username")
				}
				if out.EmailTaken {
					taken = append(taken, "email")
				}
				return apperr.Conflict(strings.Join(taken, ", ") + " già in uso")
			}
			fmt.Fprintf(cl.stdout, "account %s creato: controlla la tua email per confermarlo\n", out.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&data.Name, "name", "", "Nome")
	cmd.Flags().StringVar(&data.Surname, "surname", "", "Cognome")
	cmd.Flags().StringVar(&data.Username, "username", "", "Username")
	cmd.Flags().StringVar(&data.Email, "email", "", "Email")
	cmd.Flags().StringVar(&data.Password, "password", "", "Password (env VOCI_PASSWORD, altrimenti viene chiesta)")
	cmd.Flags().StringVar(&class, "class", "", "Classe (ID o nome) per gli studenti")
	return cmd
}

// resolveClass acepta el id o el nombre de la clase.
func (cl *cli) resolveClass(ctx context.Context, v string) (uuid.UUID, error) {
	if id, err := uuid.Parse(v); err == nil {
		return id, nil
	}
	classes, err := cl.c.Session.AvailableClasses(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	for _, c := range classes {
		if strings.EqualFold(c.Name, v) {
			return c.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("classe %q non trovata", v)
}

func (cl *cli) checkUsernameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-username <username>",
		Short: "Verifica se uno username è già in uso",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cl.c.Session.CheckUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cl.jsonOut() {
				return cl.printJSON(res)
			}
			if res.Exists {
				fmt.Fprintf(cl.stdout, "%s è già in uso\n", res.Username)
			} else {
				fmt.Fprintf(cl.stdout, "%s è disponibile\n", res.Username)
			}
			return nil
		},
	}
}

func (cl *cli) classesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "Elenca le classi disponibili per la registrazione",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := cl.c.Session.AvailableClasses(cmd.Context())
			if err != nil {
				return err
			}
			if cl.jsonOut() {
				return cl.printJSON(classes)
			}
			pairs := make([]string, 0, 2*len(classes))
			for _, c := range classes {
				pairs = append(pairs, c.Name, c.ID.String())
			}
			writeKV(cl.stdout, pairs...)
			return nil
		},
	}
}

// =================================================================================
// PREFERENCIAS
// =================================================================================

func (cl *cli) notificationsCmd() *cobra.Command {
	var toasts, alerts string
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Mostra o cambia le preferenze delle notifiche",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cl.c.Center.Flags()
			changed := false
			for _, opt := range []struct {
				raw string
				dst *bool
			}{{toasts, &f.ToastsEnabled}, {alerts, &f.AlertsEnabled}} {
				if opt.raw == "" {
					continue
				}
				v, err := strconv.ParseBool(opt.raw)
				if err != nil {
					return fmt.Errorf("valore non valido %q", opt.raw)
				}
				*opt.dst = v
				changed = true
			}
			if changed {
				if err := cl.c.Center.SetFlags(cmd.Context(), f); err != nil {
					return err
				}
			}
			return cl.printFlags(f)
		},
	}
	cmd.Flags().StringVar(&toasts, "toasts", "", "Abilita i toast (true|false)")
	cmd.Flags().StringVar(&alerts, "alerts", "", "Abilita gli avvisi (true|false)")
	return cmd
}

func (cl *cli) printFlags(f notify.Flags) error {
	if cl.jsonOut() {
		return cl.printJSON(f)
	}
	writeKV(cl.stdout, "toasts", strconv.FormatBool(f.ToastsEnabled), "alerts", strconv.FormatBool(f.AlertsEnabled))
	return nil
}

func (cl *cli) tabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tab [n]",
		Short: "Mostra o salva la scheda selezionata",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("scheda non valida %q", args[0])
				}
				if err := cl.c.Session.SetTab(cmd.Context(), n); err != nil {
					return err
				}
			}
			n, err := cl.c.Session.Tab(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cl.stdout, n)
			return nil
		},
	}
}
