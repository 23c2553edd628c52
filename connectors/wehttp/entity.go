package wehttp

import (
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/weegigs/wee-ledger-go/we"
)

// CommandDecoder turns a request body into the command registered under a name.
type CommandDecoder func(body []byte) (we.Command, error)

type CommandDecoders map[we.CommandName]CommandDecoder

// Decoder decodes a JSON body into a C value.
func Decoder[C any]() CommandDecoder {
	return func(body []byte) (we.Command, error) {
		var command C
		if err := json.Unmarshal(body, &command); err != nil {
			return nil, err
		}
		return command, nil
	}
}

// Register adds a decoder for C under its command name.
func Register[C any](decoders CommandDecoders) {
	var command C
	decoders[we.CommandNameOf(command)] = Decoder[C]()
}

type HandlerOption[T any] func(service *entityHandler[T])

func Logger[T any](log *zerolog.Logger) HandlerOption[T] {
	return func(service *entityHandler[T]) {
		service.log = log
	}
}

func Encoder[T any](encoder ResourceEncoder[T]) HandlerOption[T] {
	return func(service *entityHandler[T]) {
		service.encoder = encoder
	}
}

// NewEntityHandler serves an entity service:
//
//	GET  /{id}            current state
//	POST /{id}/{command}  execute the named command with a JSON body
func NewEntityHandler[T any](entityService we.EntityService[T], decoders CommandDecoders, options ...HandlerOption[T]) http.Handler {
	service := &entityHandler[T]{controller: entityService, decoders: decoders}
	for _, option := range options {
		option(service)
	}
	if service.log == nil {
		service.log = &log.Logger
	}

	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Method(http.MethodGet, "/{id}", service.getResource())
	r.Method(http.MethodPost, "/{id}/{command}", service.executeCommand())

	return r
}

type entityHandler[T any] struct {
	log        *zerolog.Logger
	controller we.EntityService[T]
	decoders   CommandDecoders
	encoder    ResourceEncoder[T]
}

func (service *entityHandler[T]) getResource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := we.AggregateId(chi.URLParam(r, "id"))

		entity, err := service.controller.Load(r.Context(), id)
		if err != nil {
			service.log.Info().Err(err).Str("aggregate", id.String()).Msg("failed to load resource")
			writeError(w, r, err)
			return
		}

		if !entity.Initialized() {
			http.NotFound(w, r)
			return
		}

		_ = service.encoder.Encode(w, r, &entity)
	}
}

func (service *entityHandler[T]) executeCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := we.AggregateId(chi.URLParam(r, "id"))
		name := we.CommandName(chi.URLParam(r, "command"))

		decode, ok := service.decoders[name]
		if !ok {
			http.Error(w, "unknown command", http.StatusNotFound)
			return
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/json" || err != nil {
			http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		command, err := decode(body)
		if err != nil {
			service.log.Info().Err(err).Str("command", string(name)).Msg("failed to decode command")
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		entity, err := service.controller.Execute(r.Context(), id, command)
		if err != nil {
			service.log.Info().Err(err).Str("aggregate", id.String()).Str("command", string(name)).Msg("failed to execute command")
			writeError(w, r, err)
			return
		}

		if !entity.Initialized() {
			http.NotFound(w, r)
			return
		}

		_ = service.encoder.Encode(w, r, &entity)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps store errors onto status codes. Command handlers report rejected
// commands as validation failures.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, we.ErrValidationFailed):
		status = http.StatusBadRequest
	case errors.Is(err, we.ErrVersionConflict):
		status = http.StatusConflict
	case errors.As(err, new(we.CommandNotFoundError)):
		status = http.StatusNotFound
	}

	message := http.StatusText(status)
	if status != http.StatusInternalServerError {
		message = err.Error()
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: message})
}
