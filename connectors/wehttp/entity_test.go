package wehttp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/connectors/wehttp"
	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/we"
)

type Account struct {
	Balance int `json:"balance"`
}

type Deposit struct {
	Amount int `json:"amount"`
}

type Deposited struct {
	Amount int `json:"amount"`
}

func accountServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, _ := boltdb.NewTestStore(t)

	var deposited we.ReducerFunction[Account, Deposited] = func(state *Account, event *Deposited) error {
		state.Balance += event.Amount
		return nil
	}
	renderer := &we.Renderer[Account]{Reducers: we.Reducers[Account]{we.EventTypeOf(Deposited{}): deposited}}

	var deposit we.CommandHandlerFunction[Account, Deposit] = func(ctx context.Context, cmd Deposit, state we.Entity[Account], publish we.EventAppender) error {
		if cmd.Amount <= 0 {
			return we.ValidationFailed("deposit", "amount must be positive")
		}
		_, err := publish(ctx, state.Aggregate, we.Options(), Deposited{Amount: cmd.Amount})
		return err
	}

	dispatcher := &we.RoutedDispatcher[Account]{
		Publish:  store.Append,
		Handlers: we.CommandHandlers[Account]{we.CommandNameOf(Deposit{}): deposit},
	}
	service := we.NewEntityService[Account](&we.EntityLoader[Account]{Store: store, Renderer: renderer}, dispatcher)

	decoders := wehttp.CommandDecoders{}
	wehttp.Register[Deposit](decoders)

	server := httptest.NewServer(wehttp.NewEntityHandler[Account](service, decoders))
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, url string, body string) *http.Response {
	t.Helper()

	response, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = response.Body.Close() })
	return response
}

func TestEntityHandler(t *testing.T) {
	server := accountServer(t)
	command := string(we.CommandNameOf(Deposit{}))

	t.Run("unknown entities are not found", func(t *testing.T) {
		response := get(t, server.URL+"/ACC-1", nil)
		assert.Equal(t, http.StatusNotFound, response.StatusCode)
	})

	t.Run("executes commands", func(t *testing.T) {
		response := post(t, server.URL+"/ACC-1/"+command, `{"amount":40}`)
		require.Equal(t, http.StatusOK, response.StatusCode)

		response = post(t, server.URL+"/ACC-1/"+command, `{"amount":2}`)
		require.Equal(t, http.StatusOK, response.StatusCode)

		var resource map[string]any
		require.NoError(t, json.NewDecoder(response.Body).Decode(&resource))
		assert.Equal(t, float64(42), resource["balance"])
		assert.Equal(t, "ACC-1", resource["$id"])
		assert.Equal(t, float64(2), resource["$version"])
	})

	t.Run("loads state", func(t *testing.T) {
		var resource map[string]any
		response := get(t, server.URL+"/ACC-1", &resource)
		require.Equal(t, http.StatusOK, response.StatusCode)
		assert.Equal(t, float64(42), resource["balance"])
	})

	t.Run("rejected commands are bad requests", func(t *testing.T) {
		response := post(t, server.URL+"/ACC-1/"+command, `{"amount":-1}`)
		assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	})

	t.Run("unknown commands are not found", func(t *testing.T) {
		response := post(t, server.URL+"/ACC-1/withdraw", `{"amount":1}`)
		assert.Equal(t, http.StatusNotFound, response.StatusCode)
	})

	t.Run("requires json", func(t *testing.T) {
		response, err := http.Post(server.URL+"/ACC-1/"+command, "text/plain", strings.NewReader("40"))
		require.NoError(t, err)
		defer response.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, response.StatusCode)
	})

	t.Run("invalid bodies are bad requests", func(t *testing.T) {
		response := post(t, server.URL+"/ACC-1/"+command, `{"amount":`)
		assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	})
}
