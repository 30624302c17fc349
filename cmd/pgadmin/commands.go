package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/patternguard/console/internal/client"
	"github.com/patternguard/console/internal/export"
	"github.com/patternguard/console/internal/models"
)

func newRootCommand(a *app) *Command {
	return &Command{
		Name:    "pgadmin",
		Summary: "PatternGuard administration console.",
		Subcommands: []*Command{
			loginCommand(a),
			logoutCommand(a),
			statusCommand(a),
			filesCommand(a),
			releasesCommand(a),
			feedbackCommand(a),
			downloadsCommand(a),
			versionCommand(a),
		},
	}
}

func noArgs(name string, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%s takes no arguments (got %q)", name, args)
	}
	return nil
}

func exactArgs(usage string, n int, args []string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func loginCommand(a *app) *Command {
	var username, passwordFile string
	return &Command{
		Name:    "login",
		Summary: "Sign in and store the session token",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
			fs.StringVarP(&username, "username", "u", "", "admin username (prompted when omitted)")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from this file, - for stdin")
			return fs
		},
		Run: func(args []string) error {
			if err := noArgs("login", args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			reader := bufio.NewReader(a.stdin)
			if username == "" {
				fmt.Fprint(a.stderr, "Username: ")
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading username: %w", err)
				}
				username = strings.TrimSpace(line)
			}

			password, err := a.readPassword(reader, passwordFile)
			if err != nil {
				return err
			}

			res, err := a.client.Login(a.ctx, username, password)
			if err != nil {
				return err
			}
			a.success("Logged in as %s", res.Username)
			return nil
		},
	}
}

// readPassword takes the password from a file, from stdin ("-"), or from
// an interactive prompt. Trailing newlines are stripped.
func (a *app) readPassword(reader *bufio.Reader, path string) (string, error) {
	switch path {
	case "":
		f, ok := a.stdin.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			return "", fmt.Errorf("no terminal available for password prompt (use --password-file)")
		}
		fmt.Fprint(a.stderr, "Password: ")
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(password), nil
	case "-":
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func logoutCommand(a *app) *Command {
	return &Command{
		Name:    "logout",
		Summary: "Discard the stored session token",
		Run: func(args []string) error {
			if err := noArgs("logout", args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			if err := a.client.Logout(); err != nil {
				return err
			}
			a.success("Logged out")
			return nil
		},
	}
}

func statusCommand(a *app) *Command {
	return &Command{
		Name:    "status",
		Summary: "Show the backend and session state",
		Run: func(args []string) error {
			if err := noArgs("status", args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			a.info("Backend:  %s", a.cfg.BaseURL())
			a.info("Profile:  %s", a.cfg.Session.ProfilePath)

			token, ok := a.session.Token()
			if !ok {
				a.info("Session:  not logged in")
				return nil
			}
			a.success("Session:  logged in")

			info, ok := client.InspectToken(token)
			if !ok {
				return nil
			}
			if info.Subject != "" {
				a.info("User:     %s", info.Subject)
			}
			if info.Role != "" {
				a.info("Role:     %s", info.Role)
			}
			if !info.ExpiresAt.IsZero() {
				if info.Expired(time.Now()) {
					a.warn("Token expired at %s", formatTime(info.ExpiresAt))
				} else {
					a.info("Expires:  %s", formatTime(info.ExpiresAt))
				}
			}
			return nil
		},
	}
}

func filesCommand(a *app) *Command {
	return &Command{
		Name:    "files",
		Summary: "Manage uploaded extension builds",
		Subcommands: []*Command{
			filesListCommand(a),
			filesUploadCommand(a),
			filesDeleteCommand(a),
			filesDownloadCommand(a),
		},
	}
}

func filesListCommand(a *app) *Command {
	return &Command{
		Name:    "list",
		Summary: "List stored builds",
		Run: func(args []string) error {
			if err := noArgs("files list", args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			if _, err := a.files.Refresh(a.ctx); err != nil {
				return err
			}

			records := a.files.Records()
			if len(records) == 0 {
				a.info("No files uploaded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPLATFORM\tVERSION\tSIZE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.DisplayName, r.Platform, r.Version, formatBytes(r.SizeBytes))
			}
			return tw.Flush()
		},
	}
}

func filesUploadCommand(a *app) *Command {
	var platform, version, name string
	return &Command{
		Name:    "upload",
		Summary: "Upload a build for a platform and version",
		Usage:   "pgadmin files upload --platform <platform> --version <version> [--name <name>] <path>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("upload", pflag.ContinueOnError)
			fs.StringVarP(&platform, "platform", "p", "", "target browser platform")
			fs.StringVarP(&version, "version", "v", "", "build version")
			fs.StringVar(&name, "name", "", "file name sent to the backend (default: base name of path)")
			return fs
		},
		Run: func(args []string) error {
			if err := exactArgs("pgadmin files upload --platform <platform> --version <version> <path>", 1, args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading build: %w", err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			rec, msg, err := a.files.Upload(a.ctx, models.UploadRequest{
				FileName: name,
				Payload:  data,
				Platform: models.Platform(platform),
				Version:  version,
			})
			if err != nil {
				return err
			}
			a.success("%s", msg)
			a.info("%s  %s %s  %s", rec.DisplayName, rec.Platform, rec.Version, formatBytes(rec.SizeBytes))
			return nil
		},
	}
}

func filesDeleteCommand(a *app) *Command {
	return &Command{
		Name:    "delete",
		Summary: "Delete a stored build",
		Usage:   "pgadmin files delete <id>",
		Run: func(args []string) error {
			if err := exactArgs("pgadmin files delete <id>", 1, args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			if err := a.files.Delete(a.ctx, args[0]); err != nil {
				return err
			}
			a.success("Deleted file %s", args[0])
			return nil
		},
	}
}

func filesDownloadCommand(a *app) *Command {
	var name string
	return &Command{
		Name:    "download",
		Summary: "Download a stored build into the download directory",
		Usage:   "pgadmin files download <id> [--name <name>]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
			fs.StringVar(&name, "name", "", "local file name (default: server name or file-<id>.zip)")
			return fs
		},
		Run: func(args []string) error {
			if err := exactArgs("pgadmin files download <id>", 1, args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			job := a.transfers.StartFile(a.ctx, args[0], name)
			final, err := a.transfers.Wait(a.ctx, job.ID)
			if err != nil {
				return err
			}
			a.printSaved(final.Saved)
			return nil
		},
	}
}

func (a *app) printSaved(saved *models.SavedFile) {
	a.success("Saved %s (%s)", saved.Path, formatBytes(saved.Size))
	a.info("blake3  %s", saved.Digest)
}

func downloadsCommand(a *app) *Command {
	return &Command{
		Name:    "downloads",
		Summary: "Inspect the local download directory",
		Subcommands: []*Command{
			downloadsListCommand(a),
			downloadsRemoveCommand(a),
		},
	}
}

func downloadsListCommand(a *app) *Command {
	var limit int
	return &Command{
		Name:    "list",
		Summary: "List downloaded files, newest first",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			fs.IntVarP(&limit, "limit", "n", 0, "show at most this many files (0 for all)")
			return fs
		},
		Run: func(args []string) error {
			if err := noArgs("downloads list", args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			saved, err := a.store.List(limit)
			if err != nil {
				return err
			}
			if len(saved) == 0 {
				a.info("No downloads in %s.", a.store.Dir())
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tSAVED\tBLAKE3")
			for _, f := range saved {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, formatBytes(f.Size), formatTime(f.SavedAt), truncate(f.Digest, 16))
			}
			return tw.Flush()
		},
	}
}

func downloadsRemoveCommand(a *app) *Command {
	return &Command{
		Name:    "rm",
		Summary: "Remove a downloaded file",
		Usage:   "pgadmin downloads rm <name>",
		Run: func(args []string) error {
			if err := exactArgs("pgadmin downloads rm <name>", 1, args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			saved, err := a.store.Get(args[0])
			if err != nil {
				return err
			}
			if err := a.store.Delete(saved.Name); err != nil {
				return err
			}
			a.success("Removed %s", saved.Path)
			return nil
		},
	}
}

func releasesCommand(a *app) *Command {
	return &Command{
		Name:    "releases",
		Summary: "Browse and download public builds",
		Subcommands: []*Command{
			releasesVersionsCommand(a),
			releasesDownloadCommand(a),
		},
	}
}

func releasesVersionsCommand(a *app) *Command {
	return &Command{
		Name:    "versions",
		Summary: "List published versions per platform",
		Usage:   "pgadmin releases versions [platform...]",
		Run: func(args []string) error {
			if err := a.setup(); err != nil {
				return err
			}

			platforms := args
			if len(platforms) == 0 {
				for _, p := range a.client.Platforms() {
					platforms = append(platforms, string(p))
				}
			}

			results := make([]<-chan client.Result[[]string], len(platforms))
			for i, p := range platforms {
				results[i] = client.Async(a.ctx, func(ctx context.Context) ([]string, error) {
					return a.client.ListVersions(ctx, p)
				})
			}

			var firstErr error
			for i, ch := range results {
				res := <-ch
				switch {
				case res.Err != nil:
					a.warn("%s: %s", platforms[i], res.Err)
					if firstErr == nil {
						firstErr = res.Err
					}
				case len(res.Value) == 0:
					a.info("%s: no versions published", platforms[i])
				default:
					a.info("%s: %s", platforms[i], strings.Join(res.Value, ", "))
				}
			}
			return firstErr
		},
	}
}

func releasesDownloadCommand(a *app) *Command {
	return &Command{
		Name:    "download",
		Summary: "Download the public build for a platform and version",
		Usage:   "pgadmin releases download <platform> <version|latest>",
		Run: func(args []string) error {
			if err := exactArgs("pgadmin releases download <platform> <version|latest>", 2, args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			platform, version := args[0], args[1]
			if version == "latest" {
				versions, err := a.client.ListVersions(a.ctx, platform)
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					return fmt.Errorf("no versions published for %s", platform)
				}
				version = versions[0]
			}

			job := a.transfers.StartRelease(a.ctx, platform, version)
			final, err := a.transfers.Wait(a.ctx, job.ID)
			if err != nil {
				return err
			}
			a.printSaved(final.Saved)
			return nil
		},
	}
}

func feedbackCommand(a *app) *Command {
	return &Command{
		Name:    "feedback",
		Summary: "Review, export and submit user feedback",
		Subcommands: []*Command{
			feedbackListCommand(a),
			feedbackExportCommand(a),
			feedbackSubmitCommand(a),
		},
	}
}

func feedbackListCommand(a *app) *Command {
	return &Command{
		Name:    "list",
		Summary: "List feedback entries",
		Run: func(args []string) error {
			if err := noArgs("feedback list", args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			records, err := a.client.ListFeedback(a.ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				a.info("No feedback yet.")
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tISSUE\tMAIL\tURL\tMESSAGE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Date, r.Issue, r.Mail, truncate(r.URL.String(), 40), truncate(r.Message.String(), 60))
			}
			return tw.Flush()
		},
	}
}

func feedbackExportCommand(a *app) *Command {
	var name string
	return &Command{
		Name:    "export",
		Summary: "Export all feedback as CSV into the download directory",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
			fs.StringVar(&name, "name", export.DefaultFileName, "output file name")
			return fs
		},
		Run: func(args []string) error {
			if err := noArgs("feedback export", args); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}

			records, err := a.client.ListFeedback(a.ctx)
			if err != nil {
				return err
			}
			saved, err := a.store.Save(name, bytes.NewReader(export.ToCSV(records)))
			if err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			a.success("Exported %d entries to %s", len(records), saved.Path)
			return nil
		},
	}
}

func feedbackSubmitCommand(a *app) *Command {
	var tokenFile, pageURL, issue, message string
	return &Command{
		Name:    "submit",
		Summary: "Report a page on behalf of a signed-in user",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("submit", pflag.ContinueOnError)
			fs.StringVar(&tokenFile, "identity-token-file", "", "file holding the reporter's Google ID token")
			fs.StringVar(&pageURL, "url", "", "reported page URL")
			fs.StringVar(&issue, "issue", string(models.IssueFeedback),
				"false-positive, false-negative, suggestion, feedback or other")
			fs.StringVarP(&message, "message", "m", "", "description of the issue")
			return fs
		},
		Run: func(args []string) error {
			if err := noArgs("feedback submit", args); err != nil {
				return err
			}
			if tokenFile == "" {
				return fmt.Errorf("--identity-token-file is required")
			}
			if err := a.setup(); err != nil {
				return err
			}

			raw, err := os.ReadFile(tokenFile)
			if err != nil {
				return fmt.Errorf("reading identity token: %w", err)
			}
			id, err := client.ParseIdentity(string(raw))
			if err != nil {
				return err
			}

			rec, err := a.client.SubmitFeedback(a.ctx, id, models.FeedbackSubmission{
				URL:     pageURL,
				Issue:   models.IssueCategory(issue),
				Message: message,
			})
			if err != nil {
				return err
			}
			a.success("Feedback #%s recorded for %s", rec.ID, id.Email)
			return nil
		},
	}
}

func versionCommand(a *app) *Command {
	return &Command{
		Name:    "version",
		Summary: "Print the console version",
		Run: func(args []string) error {
			a.info("pgadmin %s (built %s)", Version, BuildTime)
			return nil
		},
	}
}
