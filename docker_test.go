package syncbook_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfile(t *testing.T) {
	content := readFile(t, "Dockerfile")

	tests := []struct {
		name string
		want string
	}{
		{"Goのビルドステージ", "FROM golang:"},
		{"エントリーポイント", "ENTRYPOINT"},
		{"バイナリ名", "/app/syncbook"},
		{"エントリーポイントのパッケージ", "./cmd/syncbook"},
		{"distroless用のヘルスチェック", `"healthcheck"`},
		{"非rootユーザー", "USER nonroot"},
	}
	for _, tt := range tests {
		if !strings.Contains(content, tt.want) {
			t.Errorf("%s: Dockerfile should contain %q", tt.name, tt.want)
		}
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image, got: %s", lastFrom)
	}
}

func TestDockerCompose(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	tests := []struct {
		name string
		want string
	}{
		{"APIサービス", "api:"},
		{"ワーカーサービス", "worker:"},
		{"マイグレーションサービス", "migrate:"},
		{"DBサービス", "db:"},
		{"PostgreSQLイメージ", "image: postgres:"},
		{"workerサブコマンド", `command: ["worker"]`},
		{"migrateサブコマンド", `command: ["migrate"]`},
		{"PostgreSQLドライバ", "DATABASE_DRIVER: postgres"},
		{"ネットワーク定義", "networks:"},
		// DBは外部と通信できない内部ネットワークにのみ接続する
		{"内部ネットワーク", "internal: true"},
		{"外部ネットワーク", "external:"},
	}
	for _, tt := range tests {
		if !strings.Contains(content, tt.want) {
			t.Errorf("%s: docker-compose.yml should contain %q", tt.name, tt.want)
		}
	}
}
