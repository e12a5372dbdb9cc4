package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/internal/capture"
	"github.com/wolfman30/clinic-rx/internal/compose"
	"github.com/wolfman30/clinic-rx/internal/overlay"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

const dateLayout = "2006-01-02"

// newCLIApp creates the CLI application with all commands. Logs go to
// stderr so rendered output can be piped from stdout.
func newCLIApp(stdout, stderr io.Writer) *cli.App {
	app := &cli.App{
		Name:      "rxrender",
		Usage:     "Render prescriptions with clinic header and footer",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}, Usage: "debug|info|warn|error"},
		},
		Commands: []*cli.Command{
			captureCmd(),
			composeCmd(),
			documentCmd(),
			printCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureCmd replays a stroke recording into a PNG.
func captureCmd() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Replay a recorded stroke JSON file into a prescription image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Required: true, Usage: "Recording JSON file"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "prescription.png", Usage: "Output PNG, - for stdout"},
		},
		Action: func(c *cli.Context) error {
			data, err := os.ReadFile(c.String("in"))
			if err != nil {
				return fmt.Errorf("read recording: %w", err)
			}
			var rec capture.Recording
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode recording: %w", err)
			}
			res, err := capture.Replay(rec, capture.DefaultLimits)
			if err != nil {
				return err
			}
			if err := writeOutput(c, c.String("out"), res.PNG); err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "captured %d strokes (%d segments)\n", res.Strokes, res.Segments)
			return nil
		},
	}
}

func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "image", Required: true, Usage: "Captured prescription image (PNG/JPEG file or URL)"},
		&cli.StringFlag{Name: "templates", Aliases: []string{"t"}, Usage: "Templates JSON ({header, footer}); defaults when omitted"},
		&cli.StringFlag{Name: "date", Usage: "Prescription date YYYY-MM-DD (default today)"},
		&cli.StringFlag{Name: "notes", Usage: "Notes printed under the image"},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file, - for stdout (default download name)"},
	}
}

func patientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "mr", Required: true, Usage: "Patient MR number"},
		&cli.StringFlag{Name: "first-name", Usage: "Patient first name"},
		&cli.StringFlag{Name: "last-name", Usage: "Patient last name"},
		&cli.StringFlag{Name: "gender", Usage: "Patient gender"},
		&cli.StringFlag{Name: "dob", Usage: "Patient date of birth YYYY-MM-DD"},
	}
}

// composeCmd flattens the image with header and footer into one PNG.
func composeCmd() *cli.Command {
	return &cli.Command{
		Name:  "compose",
		Usage: "Flatten a prescription image with the clinic header and footer",
		Flags: append(renderFlags(), &cli.StringFlag{Name: "mr", Usage: "Patient MR number, used for the default file name"}),
		Action: func(c *cli.Context) error {
			art, tpl, err := loadRenderInputs(c)
			if err != nil {
				return err
			}
			out, err := newEngine(c).ComposeFlattenedImage(c.Context, art, tpl)
			if err != nil {
				return err
			}
			if out.LogoDegraded {
				fmt.Fprintln(c.App.ErrWriter, "warning: logo could not be loaded and was omitted")
			}
			return writeOutput(c, outputName(c, art.Date, "png"), out.PNG)
		},
	}
}

// documentCmd renders the paginated PDF.
func documentCmd() *cli.Command {
	return &cli.Command{
		Name:  "document",
		Usage: "Render a printable PDF prescription",
		Flags: append(renderFlags(), patientFlags()...),
		Action: func(c *cli.Context) error {
			art, tpl, err := loadRenderInputs(c)
			if err != nil {
				return err
			}
			patient, err := patientFromFlags(c)
			if err != nil {
				return err
			}
			doc, err := newEngine(c).ComposeDocument(c.Context, art, patient, tpl)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "rendered %d page(s)\n", doc.Pages)
			return writeOutput(c, outputName(c, art.Date, "pdf"), doc.PDF)
		},
	}
}

// printCmd writes the self-printing HTML page.
func printCmd() *cli.Command {
	return &cli.Command{
		Name:  "print",
		Usage: "Write an HTML page that opens the print dialog when loaded",
		Flags: append(append(renderFlags(), patientFlags()...),
			&cli.DurationFlag{Name: "delay", Value: compose.DefaultPrintDelay, Usage: "Delay before the print dialog opens"},
		),
		Action: func(c *cli.Context) error {
			art, tpl, err := loadRenderInputs(c)
			if err != nil {
				return err
			}
			patient, err := patientFromFlags(c)
			if err != nil {
				return err
			}
			page, err := newEngine(c, compose.WithPrintDelay(c.Duration("delay"))).RenderPrintDocument(c.Context, art, patient, tpl)
			if err != nil {
				return err
			}
			return writeOutput(c, outputName(c, art.Date, "html"), page)
		},
	}
}

func newEngine(c *cli.Context, opts ...compose.Option) *compose.Engine {
	logger := logging.NewWithWriter(c.App.ErrWriter, c.String("log-level"))
	resolver := assets.NewResolver(assets.NewHTTPLoader(10*time.Second), nil)
	return compose.NewEngine(resolver, append([]compose.Option{compose.WithLogger(logger)}, opts...)...)
}

func loadRenderInputs(c *cli.Context) (compose.Artifact, overlay.Templates, error) {
	date := time.Now()
	if raw := strings.TrimSpace(c.String("date")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return compose.Artifact{}, overlay.Templates{}, fmt.Errorf("invalid --date %q: %w", raw, err)
		}
		date = parsed
	}
	source, err := localRef(c.String("image"))
	if err != nil {
		return compose.Artifact{}, overlay.Templates{}, err
	}
	tpl, err := loadTemplates(c.String("templates"))
	if err != nil {
		return compose.Artifact{}, overlay.Templates{}, err
	}
	return compose.Artifact{SourceImage: source, Notes: c.String("notes"), Date: date}, tpl, nil
}

// loadTemplates reads a templates file. Relative logo paths resolve against
// the file's directory.
func loadTemplates(path string) (overlay.Templates, error) {
	if strings.TrimSpace(path) == "" {
		return overlay.DefaultTemplates(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return overlay.Templates{}, fmt.Errorf("read templates: %w", err)
	}
	tpl := overlay.DefaultTemplates()
	if err := json.Unmarshal(data, &tpl); err != nil {
		return overlay.Templates{}, fmt.Errorf("decode templates: %w", err)
	}
	tpl.Header.Normalize(overlay.KindHeader)
	tpl.Footer.Normalize(overlay.KindFooter)
	if tpl.Header.HasLogo() {
		ref := tpl.Header.Logo.Ref
		if !isRemote(ref) && !filepath.IsAbs(ref) {
			ref = filepath.Join(filepath.Dir(path), ref)
		}
		if tpl.Header.Logo.Ref, err = localRef(ref); err != nil {
			return overlay.Templates{}, err
		}
	}
	return tpl, nil
}

// localRef turns a file path into a data URL and passes remote refs through.
func localRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if isRemote(ref) {
		return ref, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if strings.HasSuffix(strings.ToLower(ref), ".svg") {
		mediaType = "image/svg+xml"
	}
	return assets.EncodeDataURL(mediaType, data), nil
}

func isRemote(ref string) bool {
	for _, prefix := range []string{"data:", "http://", "https://"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

func patientFromFlags(c *cli.Context) (compose.Patient, error) {
	p := compose.Patient{
		FirstName: c.String("first-name"),
		LastName:  c.String("last-name"),
		MRNumber:  c.String("mr"),
		Gender:    c.String("gender"),
	}
	if raw := strings.TrimSpace(c.String("dob")); raw != "" {
		dob, err := time.Parse(dateLayout, raw)
		if err != nil {
			return compose.Patient{}, fmt.Errorf("invalid --dob %q: %w", raw, err)
		}
		p.DateOfBirth = &dob
	}
	return p, nil
}

func outputName(c *cli.Context, date time.Time, ext string) string {
	if out := c.String("out"); out != "" {
		return out
	}
	mr := c.String("mr")
	if mr == "" {
		mr = "draft"
	}
	return compose.DownloadName(mr, date, ext)
}

func writeOutput(c *cli.Context, path string, data []byte) error {
	if path == "-" {
		_, err := c.App.Writer.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(c.App.ErrWriter, "wrote %s\n", path)
	return nil
}
