package newsroom_test

import (
	"os"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type composeFile struct {
	Services map[string]struct {
		Image       string            `yaml:"image"`
		Command     []string          `yaml:"command"`
		Environment map[string]string `yaml:"environment"`
		Networks    []string          `yaml:"networks"`
	} `yaml:"services"`
	Networks map[string]struct {
		Internal bool `yaml:"internal"`
	} `yaml:"networks"`
}

func loadCompose(t *testing.T) composeFile {
	t.Helper()
	data, err := os.ReadFile("docker-compose.yml")
	if err != nil {
		t.Fatalf("failed to read docker-compose.yml: %v", err)
	}
	var c composeFile
	if err := yaml.Unmarshal(data, &c); err != nil {
		t.Fatalf("failed to parse docker-compose.yml: %v", err)
	}
	return c
}

func readDockerfile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("Dockerfile")
	if err != nil {
		t.Fatalf("failed to read Dockerfile: %v", err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readDockerfile(t)

	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") {
		t.Errorf("final stage should use distroless, got: %s", lastFrom)
	}
}

func TestDockerfileBuildsNewsroomBinary(t *testing.T) {
	content := readDockerfile(t)

	if !strings.Contains(content, "./cmd/newsroom") {
		t.Error("Dockerfile should build ./cmd/newsroom")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/app/newsroom"]`) {
		t.Error("Dockerfile should use the newsroom binary as ENTRYPOINT")
	}
	if !strings.Contains(content, "healthcheck") {
		t.Error("Dockerfile should use the healthcheck subcommand")
	}
}

func TestDockerComposeServices(t *testing.T) {
	c := loadCompose(t)

	for _, name := range []string{"api", "worker", "migrate", "db", "redis"} {
		if _, ok := c.Services[name]; !ok {
			t.Errorf("docker-compose.yml should contain service %q", name)
		}
	}
	if !strings.HasPrefix(c.Services["db"].Image, "postgres:") {
		t.Errorf("db should use a postgres image, got %q", c.Services["db"].Image)
	}
	if !strings.HasPrefix(c.Services["redis"].Image, "redis:") {
		t.Errorf("redis should use a redis image, got %q", c.Services["redis"].Image)
	}
}

func TestDockerComposeCommands(t *testing.T) {
	c := loadCompose(t)

	for name, want := range map[string]string{"api": "serve", "worker": "worker", "migrate": "migrate"} {
		if got := c.Services[name].Command; !slices.Equal(got, []string{want}) {
			t.Errorf("%s command = %v, want [%s]", name, got, want)
		}
	}
}

func TestDockerComposeWorkerSharesRedis(t *testing.T) {
	c := loadCompose(t)

	api := c.Services["api"].Environment["REDIS_URL"]
	worker := c.Services["worker"].Environment["REDIS_URL"]
	if worker == "" || api != worker {
		t.Errorf("api and worker should share REDIS_URL: api=%q worker=%q", api, worker)
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	c := loadCompose(t)

	if !c.Networks["internal"].Internal {
		t.Error("internal network should be declared with internal: true")
	}
	if _, ok := c.Networks["external"]; !ok {
		t.Error("external network should be declared for feed egress")
	}

	// データストアは外部へ出られない
	for _, name := range []string{"db", "redis"} {
		if slices.Contains(c.Services[name].Networks, "external") {
			t.Errorf("%s should not join the external network", name)
		}
	}
	// フィードを取得するコンテナだけが外部へ出られる
	for _, name := range []string{"api", "worker"} {
		if !slices.Contains(c.Services[name].Networks, "external") {
			t.Errorf("%s should join the external network", name)
		}
	}
}
