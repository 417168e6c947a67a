package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	apiclient "github.com/splax/statuspage/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL   string `json:"api_base_url"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Organization string `json:"organization,omitempty"`
}

const defaultAPI = "http://localhost:4000"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "signup":
		err = commandSignup(args)
	case "login":
		err = commandLogin(args)
	case "org":
		err = commandOrg(args)
	case "service":
		err = commandService(args)
	case "incident":
		err = commandIncident(args)
	case "status":
		err = commandStatus(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func readSecret(flagValue string) (string, error) {
	secret := strings.TrimSpace(flagValue)
	if secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPI+")")
	_ = fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = strings.TrimSpace(*apiBase)
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	session, err := client.Signup(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = session.Tokens.AccessToken
	cfg.RefreshToken = session.Tokens.RefreshToken
	cfg.Organization = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("account created for %s; run 'statusctl org create' next\n", session.User.Email)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	org := fs.String("org", "", "Organization slug to act in")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPI+")")
	_ = fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = strings.TrimSpace(*apiBase)
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	session, err := client.Login(ctx, *email, secret, *org)
	if err != nil {
		return err
	}
	cfg.AccessToken = session.Tokens.AccessToken
	cfg.RefreshToken = session.Tokens.RefreshToken
	cfg.Organization = ""
	if session.Organization != nil {
		cfg.Organization = session.Organization.Slug
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	if cfg.Organization != "" {
		fmt.Printf("logged in to %s\n", cfg.Organization)
	} else {
		fmt.Println("logged in (no organization yet)")
	}
	return nil
}

// session loads stored credentials and builds a client.
func session() (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return cliConfig{}, nil, errors.New("please login first using 'statusctl login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func commandOrg(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: statusctl org [list|create]")
	}
	cfg, client, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch args[0] {
	case "list":
		orgs, err := client.ListOrganizations(ctx, cfg.AccessToken)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, o := range orgs {
			marker := ""
			if o.Slug == cfg.Organization {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, o.Slug, o.Name, o.ID)
		}
		return w.Flush()
	case "create":
		fs := flag.NewFlagSet("org create", flag.ExitOnError)
		name := fs.String("name", "", "Organization name")
		slug := fs.String("slug", "", "Public slug (lowercase letters, digits, dashes)")
		email := fs.String("notify-email", "", "Address that receives incident mail")
		_ = fs.Parse(args[1:])
		if strings.TrimSpace(*name) == "" || strings.TrimSpace(*slug) == "" {
			return errors.New("--name and --slug are required")
		}
		org, tokens, err := client.CreateOrganization(ctx, cfg.AccessToken, apiclient.CreateOrganizationInput{Name: *name, Slug: *slug, NotifyEmail: *email})
		if err != nil {
			return err
		}
		cfg.AccessToken = tokens.AccessToken
		cfg.RefreshToken = tokens.RefreshToken
		cfg.Organization = org.Slug
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("organization created: %s (%s)\n", org.Name, org.Slug)
		return nil
	default:
		return fmt.Errorf("unknown org command: %s", args[0])
	}
}

func commandService(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: statusctl service [list|create|set-status]")
	}
	cfg, client, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch args[0] {
	case "list":
		services, err := client.ListServices(ctx, cfg.AccessToken)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, s := range services {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, s.MonitorURL)
		}
		return w.Flush()
	case "create":
		fs := flag.NewFlagSet("service create", flag.ExitOnError)
		name := fs.String("name", "", "Service name")
		desc := fs.String("description", "", "Description")
		monitor := fs.String("monitor-url", "", "URL probed by the health sweep")
		_ = fs.Parse(args[1:])
		if strings.TrimSpace(*name) == "" {
			return errors.New("--name is required")
		}
		svc, err := client.CreateService(ctx, cfg.AccessToken, apiclient.CreateServiceInput{Name: *name, Description: *desc, MonitorURL: *monitor})
		if err != nil {
			return err
		}
		fmt.Printf("service created: %s (%s)\n", svc.ID, svc.Name)
		return nil
	case "set-status":
		fs := flag.NewFlagSet("service set-status", flag.ExitOnError)
		id := fs.String("service", "", "Service identifier")
		status := fs.String("status", "", "OPERATIONAL, DEGRADED_PERFORMANCE, PARTIAL_OUTAGE, MAJOR_OUTAGE or UNDER_MAINTENANCE")
		_ = fs.Parse(args[1:])
		if strings.TrimSpace(*id) == "" || strings.TrimSpace(*status) == "" {
			return errors.New("--service and --status are required")
		}
		svc, err := client.SetServiceStatus(ctx, cfg.AccessToken, *id, *status)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", svc.Name, svc.Status)
		return nil
	default:
		return fmt.Errorf("unknown service command: %s", args[0])
	}
}

func commandIncident(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: statusctl incident [list|open|status|update|export]")
	}
	cfg, client, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("incident list", flag.ExitOnError)
		open := fs.Bool("open", false, "Only unresolved incidents")
		limit := fs.Int("limit", 20, "Maximum number of incidents")
		_ = fs.Parse(args[1:])
		incidents, err := client.ListIncidents(ctx, cfg.AccessToken, *open, *limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, inc := range incidents {
			service := inc.ServiceID
			if inc.Service != nil {
				service = inc.Service.Name
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", inc.ID, inc.Status, service, inc.Title, inc.StartedAt.Local().Format(time.RFC822))
		}
		return w.Flush()
	case "open":
		fs := flag.NewFlagSet("incident open", flag.ExitOnError)
		service := fs.String("service", "", "Affected service identifier")
		title := fs.String("title", "", "Incident title")
		desc := fs.String("description", "", "Description")
		_ = fs.Parse(args[1:])
		if strings.TrimSpace(*service) == "" || strings.TrimSpace(*title) == "" {
			return errors.New("--service and --title are required")
		}
		inc, err := client.CreateIncident(ctx, cfg.AccessToken, apiclient.CreateIncidentInput{ServiceID: *service, Title: *title, Description: *desc})
		if err != nil {
			return err
		}
		fmt.Printf("incident opened: %s (%s)\n", inc.ID, inc.Status)
		return nil
	case "status":
		fs := flag.NewFlagSet("incident status", flag.ExitOnError)
		id := fs.String("incident", "", "Incident identifier")
		status := fs.String("status", "", "INVESTIGATING, IDENTIFIED, MONITORING or RESOLVED")
		message := fs.StringP("message", "m", "", "Timeline message")
		_ = fs.Parse(args[1:])
		if strings.TrimSpace(*id) == "" || strings.TrimSpace(*status) == "" {
			return errors.New("--incident and --status are required")
		}
		inc, err := client.UpdateIncidentStatus(ctx, cfg.AccessToken, *id, *status, *message)
		if err != nil {
			return err
		}
		fmt.Printf("incident %s is now %s\n", inc.ID, inc.Status)
		return nil
	case "update":
		fs := flag.NewFlagSet("incident update", flag.ExitOnError)
		id := fs.String("incident", "", "Incident identifier")
		message := fs.StringP("message", "m", "", "Timeline message")
		_ = fs.Parse(args[1:])
		if strings.TrimSpace(*id) == "" || strings.TrimSpace(*message) == "" {
			return errors.New("--incident and --message are required")
		}
		update, err := client.AddIncidentUpdate(ctx, cfg.AccessToken, *id, *message)
		if err != nil {
			return err
		}
		fmt.Printf("update posted: %s\n", update.ID)
		return nil
	case "export":
		fs := flag.NewFlagSet("incident export", flag.ExitOnError)
		out := fs.StringP("output", "o", "incidents.xlsx", "Destination file")
		_ = fs.Parse(args[1:])
		data, err := client.ExportIncidents(ctx, cfg.AccessToken)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
		return nil
	default:
		return fmt.Errorf("unknown incident command: %s", args[0])
	}
}

func commandStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	_ = fs.Parse(args)

	cfg, _ := loadConfig()
	slug := cfg.Organization
	if fs.NArg() > 0 {
		slug = fs.Arg(0)
	}
	if strings.TrimSpace(slug) == "" {
		return errors.New("usage: statusctl status <org-slug>")
	}
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	page, err := client.PublicStatus(ctx, slug)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n\n", page.Organization.Name, page.AggregateStatus)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, s := range page.Services {
		fmt.Fprintf(w, "  %s\t%s\n", s.Name, s.Status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(page.RecentIncidents) > 0 {
		fmt.Println("\nRecent incidents:")
		for _, inc := range page.RecentIncidents {
			fmt.Printf("  [%s] %s\n", inc.Status, inc.Title)
		}
	}
	return nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{APIBaseURL: defaultAPI}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPI}, nil
		}
		return cliConfig{APIBaseURL: defaultAPI}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPI
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("STATUSCTL_CONFIG")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "statuspage", "config.json"), nil
}

func printUsage() {
	fmt.Printf("statusctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	statusctl signup --email user@example.com [--password secret] [--api http://localhost:4000]
	statusctl login --email user@example.com [--org slug] [--password secret]
	statusctl org list
	statusctl org create --name "Acme" --slug acme [--notify-email ops@acme.io]
	statusctl service list
	statusctl service create --name API [--monitor-url https://api.acme.io/health]
	statusctl service set-status --service <id> --status MAJOR_OUTAGE
	statusctl incident list [--open] [--limit N]
	statusctl incident open --service <id> --title "Elevated errors"
	statusctl incident status --incident <id> --status RESOLVED [-m message]
	statusctl incident update --incident <id> -m "Rolling back"
	statusctl incident export [-o incidents.xlsx]
	statusctl status [slug]
	statusctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
