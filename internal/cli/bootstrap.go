package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/dcm-project/service-orchestrator/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Manifest lists services to register against a running orchestrator.
type Manifest struct {
	Host     string            `mapstructure:"host"`
	APIKey   string            `mapstructure:"api_key"`
	FilesDir string            `mapstructure:"files_dir"`
	Services []ManifestService `mapstructure:"services"`
}

type ManifestService struct {
	SourceLocator string         `mapstructure:"source_locator"`
	Mode          string         `mapstructure:"mode"`
	Port          string         `mapstructure:"port"`
	WorkspaceRoot string         `mapstructure:"workspace_root"`
	Image         string         `mapstructure:"image"`
	Tag           string         `mapstructure:"tag"`
	Volumes       []string       `mapstructure:"volumes"`
	Files         []ManifestFile `mapstructure:"files"`
}

// ManifestFile copies Source, relative to the manifest's files_dir, to Path
// inside the service workspace.
type ManifestFile struct {
	Path   string `mapstructure:"path"`
	Source string `mapstructure:"source"`
}

// LoadManifest reads a JSON or YAML manifest. ORCHESTRATOR_HOST and
// ORCHESTRATOR_API_KEY override the file.
func LoadManifest(path string) (*Manifest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("orchestrator")
	v.SetDefault("host", "http://localhost:8080/api/v1")
	v.SetDefault("files_dir", "files")
	if err := v.BindEnv("host"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("api_key"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := v.Unmarshal(&manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if !filepath.IsAbs(manifest.FilesDir) {
		manifest.FilesDir = filepath.Join(filepath.Dir(path), manifest.FilesDir)
	}
	return &manifest, nil
}

// Request builds the registration request, reading override contents from filesDir.
func (s ManifestService) Request(filesDir string) (v1.RegisterServiceRequest, error) {
	req := v1.RegisterServiceRequest{
		SourceLocator: s.SourceLocator,
		Mode:          s.Mode,
		Port:          s.Port,
		WorkspaceRoot: s.WorkspaceRoot,
		Image:         s.Image,
		Tag:           s.Tag,
		Volumes:       s.Volumes,
	}
	if len(s.Files) == 0 {
		return req, nil
	}
	req.Files = make(map[string]string, len(s.Files))
	for _, f := range s.Files {
		content, err := os.ReadFile(filepath.Join(filesDir, f.Source))
		if err != nil {
			return req, fmt.Errorf("read override %s: %w", f.Path, err)
		}
		req.Files[f.Path] = string(content)
	}
	return req, nil
}

// Bootstrap registers every service of manifest in order. A failing service
// does not stop the others; the returned error joins all failures. With a
// positive wait it also waits for each accepted service to finish building.
func Bootstrap(ctx context.Context, manifest *Manifest, c *client.Client, wait time.Duration, out io.Writer) error {
	var errs []error
	for i, svc := range manifest.Services {
		req, err := svc.Request(manifest.FilesDir)
		if err != nil {
			fmt.Fprintf(out, "service %d: %v\n", i, err)
			errs = append(errs, fmt.Errorf("service %d: %w", i, err))
			continue
		}

		ack, err := c.Register(ctx, req)
		if err != nil {
			fmt.Fprintf(out, "service %d: registration failed: %v\n", i, err)
			errs = append(errs, fmt.Errorf("service %d: %w", i, err))
			continue
		}
		fmt.Fprintf(out, "service %d: registered %s (task %s)\n", i, ack.Id, ack.Task)

		if wait <= 0 {
			continue
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		final, err := c.WaitForState(waitCtx, ack.Id, time.Second, v1.Running, v1.BuildFailed)
		cancel()
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("service %s: %w", ack.Id, err))
		case final.State == v1.BuildFailed:
			detail := ""
			if final.Error != nil {
				detail = strings.TrimSpace(*final.Error)
			}
			fmt.Fprintf(out, "service %s: build failed\n%s\n", ack.Id, detail)
			errs = append(errs, fmt.Errorf("service %s: build failed", ack.Id))
		default:
			fmt.Fprintf(out, "service %s: %s\n", ack.Id, final.State)
		}
	}
	return errors.Join(errs...)
}

func newBootstrapCommand() *cobra.Command {
	var (
		manifestPath string
		wait         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Register the services listed in a manifest",
		Long:  "Register the services listed in a JSON or YAML manifest with a running orchestrator.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			var opts []client.Option
			if manifest.APIKey != "" {
				opts = append(opts, client.WithAPIKey(manifest.APIKey))
			}
			c := client.New(manifest.Host, opts...)
			return Bootstrap(cmd.Context(), manifest, c, wait, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "services.yaml", "path to the manifest file")
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for each service to finish building")
	return cmd
}
