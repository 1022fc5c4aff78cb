package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/bulkmail/env"
	"github.com/pure-golang/bulkmail/store"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func setenv(t *testing.T) (data string) {
	t.Helper()
	data = t.TempDir()
	t.Setenv(env.EnvFileVar, filepath.Join(data, "missing.env"))
	t.Setenv("BULKMAIL_DATA_DIR", data)
	t.Setenv("BULKMAIL_CAMPAIGN_DIR", filepath.Join(data, "campaigns"))
	t.Setenv("BULKMAIL_CAMPAIGN_STORE", "file")
	t.Setenv("BULKMAIL_TALLY", "memory")
	t.Setenv("BULKMAIL_QUEUE", "")
	t.Setenv("LOG_PROVIDER", "noop")
	t.Setenv("TRACING_ENDPOINT", "")
	t.Setenv("METRICS_ENABLED", "false")

	write(t, data, "leads/l.csv", "email,name\nann@example.com,Ann\nbob@example.com,Bob\n")
	write(t, data, "smtps/s.csv", "host,port,user,password\nsmtp.example.com,587,news,pw\n")
	write(t, data, "subjects/s.txt", "Hello {name}\n")
	write(t, data, "messages/m/a.html", "<p>Hi {name}</p>")
	return data
}

func TestCommands(t *testing.T) {
	data := setenv(t)
	cfgPath := write(t, data, "spring.json", `{
		"leads": "l", "smtps": "s", "subjects": "s", "messages": "m",
		"sending_mode": "custom", "delay_min": 0, "delay_max": 0, "seed": 7
	}`)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"import", "spring", cfgPath}, &out))
	assert.Contains(t, out.String(), "campaign spring saved (Custom Delay)")

	out.Reset()
	require.NoError(t, run(ctx, []string{"list"}, &out))
	assert.Equal(t, "spring\n", out.String())

	out.Reset()
	require.NoError(t, run(ctx, []string{"-limit", "0", "plan", "spring"}, &out))
	assert.Contains(t, out.String(), "seed 7, 2 tasks, 0 skipped")
	assert.Contains(t, out.String(), "bob@example.com")

	out.Reset()
	require.NoError(t, run(ctx, []string{"-dry-run", "run", "spring"}, &out))
	assert.Contains(t, out.String(), "2 tasks, 2 sent, 0 failed")

	out.Reset()
	require.NoError(t, run(ctx, []string{"-dry-run", "verify", "spring"}, &out))
	assert.Contains(t, out.String(), "smtp.example.com")

	require.NoError(t, run(ctx, []string{"delete", "spring"}, &out))
	err := run(ctx, []string{"plan", "spring"}, &out)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsageErrors(t *testing.T) {
	setenv(t)
	ctx := context.Background()
	var out bytes.Buffer

	assert.ErrorContains(t, run(ctx, nil, &out), "no command given")
	assert.ErrorContains(t, run(ctx, []string{"launch"}, &out), `unknown command "launch"`)
	assert.ErrorContains(t, run(ctx, []string{"plan"}, &out), "expected one <campaign> argument")
	assert.ErrorContains(t, run(ctx, []string{"import", "x"}, &out), "import needs")
	assert.ErrorContains(t, run(ctx, []string{"progress", "run-1"}, &out), "BULKMAIL_TALLY=redis")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{CampaignStore: storeFile, QueueFormat: "json"}
	require.NoError(t, valid.validate())

	for _, edit := range []func(*Config){
		func(c *Config) { c.CampaignStore = "mongo" },
		func(c *Config) { c.Tally = "etcd" },
		func(c *Config) { c.Queue = "nats" },
		func(c *Config) { c.QueueFormat = "xml" },
	} {
		c := valid
		edit(&c)
		assert.Error(t, c.validate())
	}
}
