package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
)

// Sender delivers notification jobs by running local commands.
// Only channels registered up front can run; nothing in a job selects the
// command or its flags.
type Sender struct {
	registry map[domain.Channel]CommandConfig
	baseDir  string
}

// Option configures the sender.
type Option func(*Sender)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(commands map[domain.Channel]CommandConfig) Option {
	return func(s *Sender) {
		for _, c := range commands {
			s.registry[c.Channel] = c
		}
	}
}

// WithBaseDir sets the working directory for executed commands.
func WithBaseDir(dir string) Option {
	return func(s *Sender) {
		s.baseDir = dir
	}
}

// New creates a command sender.
func New(opts ...Option) *Sender {
	s := &Sender{registry: make(map[domain.Channel]CommandConfig)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a trusted command for channel.
func (s *Sender) Register(channel domain.Channel, command string, args ...string) {
	s.registry[channel] = CommandConfig{Channel: channel, Command: command, Args: args}
}

// Channels lists the registered channels in sorted order.
func (s *Sender) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(s.registry))
	for ch := range s.registry {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// For returns a ports.Sender bound to channel's command, for registration
// with a dispatcher.
func (s *Sender) For(channel domain.Channel) ports.Sender {
	return ports.SenderFunc(func(ctx context.Context, job domain.NotificationJob) error {
		job.Channel = channel
		return s.Send(ctx, job)
	})
}

// Send runs the command registered for job.Channel. The job is written to
// stdin as JSON and its fields are exported as TURNSTILE_* variables.
// A non-zero exit is reported with the command's stderr.
func (s *Sender) Send(ctx context.Context, job domain.NotificationJob) error {
	proc, ok := s.registry[job.Channel]
	if !ok {
		return fmt.Errorf("no command registered for channel %q", job.Channel)
	}

	input, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = s.baseDir
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(cmd.Environ(), jobEnv(job)...)
	for k, v := range proc.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", proc.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func jobEnv(job domain.NotificationJob) []string {
	return []string{
		"TURNSTILE_RECIPIENT=" + job.RecipientID,
		"TURNSTILE_CHANNEL=" + string(job.Channel),
		"TURNSTILE_SOURCE_KIND=" + string(job.SourceEntity),
		"TURNSTILE_SOURCE_ID=" + job.SourceID,
		"TURNSTILE_TITLE=" + job.Title,
		"TURNSTILE_PRIORITY=" + string(job.Priority),
	}
}
