// Command kobo-admin is a CLI client for the Kobo admin HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// ---- session store ----

// session remembers the last successful login so whoami works offline.
type session struct {
	Addr   string    `json:"addr"`
	KoboID string    `json:"kobo_id"`
	Role   string    `json:"role"`
	At     time.Time `json:"at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "kobo-admin")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kobo-admin")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

func saveSession(s session) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath(), b, 0o600)
}

func loadSession() (session, error) {
	var s session
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		return s, errors.New("no session (login required)")
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	return s, nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optional adds key to q only when the flag was set on the command line.
func optional(fs *flag.FlagSet, q url.Values, keys ...string) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, k := range keys {
		if set[k] {
			q.Set(k, fs.Lookup(k).Value.String())
		}
	}
}

const usageText = `kobo-admin CLI
Usage:
  kobo-admin -addr URL <cmd> [args]

Commands:
  version
  login      -id <koboId> -pin <pin>             (saves session)
  whoami
  users      [-search s] [-country c] [-category c] [-status s] [-tier t] [-role r] [-limit n] [-offset n]
  details    -id <koboId>
  history    -id <koboId>
  reset-pin  -id <koboId> -pin <newPin>
  terminate  -id <koboId>
  role       -id <koboId> -role user|admin|agent
  pro        -id <koboId> [-on=false]
  activate   -id <koboId>
  stats
  analytics  [-v2]
`

// errUsage asks main to print usage and exit 2.
var errUsage = errors.New("usage")

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses global flags and dispatches to run.
func main() {
	addr := flag.String("addr", "http://localhost:3000", "server base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := newClient(*addr, &http.Client{Timeout: *timeout})
	err := run(ctx, c, flag.Args(), os.Stdout)
	switch {
	case errors.Is(err, errUsage):
		flag.Usage()
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one command against c and prints its result to out.
func run(ctx context.Context, c *client, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "kobo id")

	switch cmd {

	case "version":
		_, err := fmt.Fprintf(out, "kobo-admin %s (%s)\n", version, buildDate)
		return err

	case "login":
		pin := fs.String("pin", "", "PIN")
		if err := parse(fs, rest, id, pin); err != nil {
			return err
		}
		var resp struct {
			User struct {
				KoboID string `json:"kobo_id"`
				Role   string `json:"role"`
			} `json:"user"`
		}
		if err := c.post(ctx, "/auth/login", map[string]string{"koboId": *id, "pin": *pin}, &resp); err != nil {
			return err
		}
		s := session{Addr: c.base, KoboID: resp.User.KoboID, Role: resp.User.Role, At: time.Now().UTC()}
		if err := saveSession(s); err != nil {
			return err
		}
		return printJSON(out, s)

	case "whoami":
		s, err := loadSession()
		if err != nil {
			return err
		}
		return printJSON(out, s)

	case "users":
		fs.String("search", "", "free-text search")
		fs.String("country", "", "country")
		fs.String("category", "", "business type")
		fs.String("status", "", "account status")
		fs.String("tier", "", "premium|standard")
		fs.String("role", "", "role")
		fs.Int("limit", 0, "page size")
		fs.Int("offset", 0, "page offset")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		q := url.Values{}
		optional(fs, q, "search", "country", "category", "status", "tier", "role", "limit", "offset")
		var users []json.RawMessage
		if err := c.get(ctx, "/admin/users", q, &users); err != nil {
			return err
		}
		return printJSON(out, users)

	case "details", "history":
		if err := parse(fs, rest, id); err != nil {
			return err
		}
		path := "/admin/users/" + url.PathEscape(*id) + "/details"
		if cmd == "history" {
			path = "/admin/users/" + url.PathEscape(*id) + "/login-history"
		}
		var v json.RawMessage
		if err := c.get(ctx, path, nil, &v); err != nil {
			return err
		}
		return printJSON(out, v)

	case "reset-pin":
		pin := fs.String("pin", "", "new PIN")
		if err := parse(fs, rest, id, pin); err != nil {
			return err
		}
		return mutate(ctx, c, out, "/admin/users/reset-pin", map[string]string{"koboId": *id, "newPin": *pin})

	case "terminate":
		if err := parse(fs, rest, id); err != nil {
			return err
		}
		return mutate(ctx, c, out, "/admin/users/terminate", map[string]string{"koboId": *id})

	case "role":
		role := fs.String("role", "", "user|admin|agent")
		if err := parse(fs, rest, id, role); err != nil {
			return err
		}
		return mutate(ctx, c, out, "/admin/users/update-role", map[string]string{"koboId": *id, "role": *role})

	case "pro":
		on := fs.Bool("on", true, "premium flag")
		if err := parse(fs, rest, id); err != nil {
			return err
		}
		return mutate(ctx, c, out, "/admin/users/toggle-pro", map[string]any{"koboId": *id, "isPro": *on})

	case "activate":
		if err := parse(fs, rest, id); err != nil {
			return err
		}
		return mutate(ctx, c, out, "/subscription/activate", map[string]string{"koboId": *id})

	case "stats":
		var v json.RawMessage
		if err := c.get(ctx, "/admin/stats", nil, &v); err != nil {
			return err
		}
		return printJSON(out, v)

	case "analytics":
		v2 := fs.Bool("v2", false, "extended report")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		path := "/admin/analytics"
		if *v2 {
			path += "/v2"
		}
		var v json.RawMessage
		if err := c.get(ctx, path, nil, &v); err != nil {
			return err
		}
		return printJSON(out, v)

	default:
		return errUsage
	}
}

// parse reads rest into fs and rejects empty required flags.
func parse(fs *flag.FlagSet, rest []string, required ...*string) error {
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}
	for _, p := range required {
		if *p == "" {
			return fmt.Errorf("%s: missing required flag: %w", fs.Name(), errUsage)
		}
	}
	return nil
}

func mutate(ctx context.Context, c *client, out io.Writer, path string, body any) error {
	var v json.RawMessage
	if err := c.post(ctx, path, body, &v); err != nil {
		return err
	}
	return printJSON(out, v)
}
