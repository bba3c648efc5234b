package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/aeo-cli/internal/resilience"
	"github.com/sells-group/aeo-cli/pkg/jina"
	jinamocks "github.com/sells-group/aeo-cli/pkg/jina/mocks"
)

var fastRetry = resilience.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
}

var longContent = "# Acme Corp\n\nWe build things and do stuff for people around the world. " +
	"This is a long enough content string to pass the fallback check which requires 100 chars."

func TestJinaAdapter_NameSupports(t *testing.T) {
	t.Parallel()
	adapter := NewJinaAdapter(jinamocks.NewMockClient(t), nil, fastRetry)
	assert.Equal(t, "jina", adapter.Name())
	assert.True(t, adapter.Supports("https://example.com"))
}

func TestJinaAdapter_Scrape_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := jinamocks.NewMockClient(t)
	adapter := NewJinaAdapter(client, nil, fastRetry)

	client.EXPECT().Read(ctx, "https://acme.com").Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			URL:         "https://acme.com",
			Title:       "Acme Corp",
			Description: "Widgets",
			Content:     longContent,
			Usage:       jina.ReadUsage{Tokens: 500},
		},
	}, nil)

	result, err := adapter.Scrape(ctx, "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "jina", result.Source)
	assert.Equal(t, "https://acme.com", result.Page.URL)
	assert.Equal(t, "Acme Corp", result.Page.Title)
	assert.Equal(t, "Widgets", result.Page.Description)
	assert.Equal(t, longContent, result.Page.Text)
	assert.Equal(t, 200, result.Page.StatusCode)
}

func TestJinaAdapter_Scrape_RetriesTransient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := jinamocks.NewMockClient(t)
	adapter := NewJinaAdapter(client, nil, fastRetry)

	client.EXPECT().Read(ctx, "https://acme.com").
		Return(nil, resilience.StatusError("jina", 503, "busy")).Once()
	client.EXPECT().Read(ctx, "https://acme.com").
		Return(&jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: longContent}}, nil).Once()

	result, err := adapter.Scrape(ctx, "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com", result.Page.URL, "falls back to the requested URL")
}

func TestJinaAdapter_Scrape_ClientError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := jinamocks.NewMockClient(t)
	adapter := NewJinaAdapter(client, nil, fastRetry)

	client.EXPECT().Read(ctx, "https://fail.com").Return(nil, errors.New("bad request")).Once()

	_, err := adapter.Scrape(ctx, "https://fail.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad request")
}

func TestJinaAdapter_Scrape_NeedsFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := jinamocks.NewMockClient(t)
	adapter := NewJinaAdapter(client, nil, fastRetry)

	client.EXPECT().Read(ctx, "https://blocked.com").Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{URL: "https://blocked.com", Content: "short"},
	}, nil)

	_, err := adapter.Scrape(ctx, "https://blocked.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs fallback")
}

func TestJinaAdapter_BreakerOpens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := jinamocks.NewMockClient(t)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	})
	adapter := NewJinaAdapter(client, breaker, resilience.RetryConfig{MaxAttempts: 1})

	client.EXPECT().Read(ctx, "https://down.com").Return(nil, errors.New("boom")).Times(2)

	for i := 0; i < 2; i++ {
		_, err := adapter.Scrape(ctx, "https://down.com")
		require.Error(t, err)
	}
	assert.False(t, adapter.Supports("https://down.com"))

	_, err := adapter.Scrape(ctx, "https://down.com")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestNeedsFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *jina.ReadResponse
		want bool
	}{
		{"nil response", nil, true},
		{"non-200 code", &jina.ReadResponse{Code: 403}, true},
		{"short content", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "too short"}}, true},
		{
			"challenge signature in short content",
			&jina.ReadResponse{Code: 200, Data: jina.ReadData{
				Content: "Checking your browser before accessing this site. Please enable JavaScript and cookies to continue.",
			}},
			true,
		},
		{"valid long content", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: longContent}}, false},
		{
			"challenge signature in long content is ok",
			&jina.ReadResponse{Code: 200, Data: jina.ReadData{
				Content: "This page mentions cloudflare. " + strings.Repeat("Real content about the product line. ", 40),
			}},
			false,
		},
		{"code 0 is acceptable", &jina.ReadResponse{Data: jina.ReadData{Content: longContent}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, needsFallback(tt.resp))
		})
	}
}
