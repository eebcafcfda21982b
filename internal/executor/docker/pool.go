package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// pool keeps PoolSize idle containers running `sleep infinity` so a snippet
// run only pays for `docker exec`.
type pool struct {
	cli    client.APIClient
	config Config
	logger *slog.Logger

	ready  chan string
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	closed sync.Once
}

func newPool(cli client.APIClient, cfg Config, logger *slog.Logger) *pool {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	return &pool{
		cli:    cli,
		config: cfg,
		logger: logger.With(slog.String("image", cfg.Image)),
		ready:  make(chan string, size),
		stop:   make(chan struct{}),
	}
}

// start launches the refill loop.
func (p *pool) start() {
	p.once.Do(func() {
		p.logger.Info("starting container pool", slog.Int("size", cap(p.ready)))
		p.wg.Add(1)
		go p.refill()
	})
}

// shutdown stops the refill loop and removes every idle container.
func (p *pool) shutdown() {
	p.closed.Do(func() {
		close(p.stop)
		p.wg.Wait()

		for {
			select {
			case id := <-p.ready:
				p.remove(id)
			default:
				p.logger.Info("container pool stopped")
				return
			}
		}
	})
}

// take hands out an idle container. The caller owns it and must remove it.
func (p *pool) take(ctx context.Context) (string, error) {
	select {
	case id := <-p.ready:
		return id, nil
	case <-p.stop:
		return "", fmt.Errorf("docker: pool stopped")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *pool) refill() {
	defer p.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		if len(p.ready) == cap(p.ready) {
			select {
			case <-p.stop:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		id, err := p.create()
		if err != nil {
			p.logger.Error("creating warm container", slog.String("error", err.Error()))
			select {
			case <-p.stop:
				return
			case <-time.After(backoff):
			}
			continue
		}

		select {
		case p.ready <- id:
		case <-p.stop:
			p.remove(id)
			return
		}
	}
}

func (p *pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: p.config.Image,
		Cmd:   []string{"sleep", "infinity"},
		User:  "nobody",
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("docker: container create: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return "", fmt.Errorf("docker: container start: %w", err)
	}
	return resp.ID, nil
}

func (p *pool) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("removing container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
