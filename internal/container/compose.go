package container

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/common"
)

// ErrContainerNotFound is returned when the compose service has no running container
var ErrContainerNotFound = errors.New("container not found")

// Compose addresses one service of a compose project
type Compose struct {
	runner  Runner
	compose []string
	docker  []string
	dir     string
	service string
	logger  arbor.ILogger
}

// NewCompose parses the configured command lines. Commands use shell
// quoting, e.g. `docker compose -f "my compose.yml"`.
func NewCompose(config common.RuntimeConfig, runner Runner, logger arbor.ILogger) (*Compose, error) {
	compose, err := splitCommand(config.ComposeCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid compose command: %w", err)
	}
	docker, err := splitCommand(config.DockerCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid docker command: %w", err)
	}
	if config.Service == "" {
		return nil, errors.New("runtime service is required")
	}

	return &Compose{
		runner:  runner,
		compose: compose,
		docker:  docker,
		dir:     config.ProjectDir,
		service: config.Service,
		logger:  logger,
	}, nil
}

func splitCommand(line string) ([]string, error) {
	args, err := shellwords.NewParser().Parse(line)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}

func (c *Compose) run(ctx context.Context, base []string, args ...string) (string, error) {
	full := append(append([]string{}, base[1:]...), args...)
	c.logger.Debug().Str("cmd", base[0]).Strs("args", full).Msg("Running command")
	return c.runner.Run(ctx, c.dir, base[0], full...)
}

// Service returns the compose service name
func (c *Compose) Service() string {
	return c.service
}

// ContainerID returns the id of the service's running container
func (c *Compose) ContainerID(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.compose, "ps", "-q", c.service)
	if err != nil {
		return "", fmt.Errorf("failed to list containers for %s: %w", c.service, err)
	}

	// Scaled services list one id per line; the first is used
	id := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	if id == "" {
		return "", fmt.Errorf("%w: service %s", ErrContainerNotFound, c.service)
	}
	return id, nil
}

// CopyDir copies the contents of srcDir inside the container into dest
func (c *Compose) CopyDir(ctx context.Context, containerID, srcDir, dest string) error {
	src := fmt.Sprintf("%s:%s/.", containerID, strings.TrimRight(srcDir, "/"))
	if _, err := c.run(ctx, c.docker, "cp", src, dest); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

// Exec runs a shell-quoted command line inside the service and returns stdout
func (c *Compose) Exec(ctx context.Context, commandLine string) (string, error) {
	args, err := splitCommand(commandLine)
	if err != nil {
		return "", fmt.Errorf("invalid exec command %q: %w", commandLine, err)
	}

	out, err := c.run(ctx, c.compose, append([]string{"exec", "-T", c.service}, args...)...)
	if err != nil {
		return out, fmt.Errorf("failed to exec in %s: %w", c.service, err)
	}
	return out, nil
}
