package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Storefront/internal/product"
	"Storefront/pkg/kit"
)

const (
	maxBodyBytes    = 1 << 16
	defaultTokenTTL = 12 * time.Hour
	eventBuffer     = 8
)

type Server struct {
	Registry *Registry
	Tokens   *TokenMaker
	TokenTTL time.Duration
	Log      *zap.Logger
	Metrics  *Metrics
}

type createResp struct {
	SessionID   string           `json:"session_id"`
	AccessToken string           `json:"access_token"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Snapshot    product.Snapshot `json:"snapshot"`
}

type quantityOp struct {
	name     string
	accessor func(context.Context) (func(id string) bool, error)
}

var (
	opIncrease = quantityOp{product.CauseIncrease, product.IncreaseQuantity}
	opDecrease = quantityOp{product.CauseDecrease, product.DecreaseQuantity}
	opReset    = quantityOp{product.CauseReset, product.ResetQuantity}
)

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Registry.Source.Ping(ctx); err != nil {
		if s.Log != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Registry.Create(r.Context())
	if err != nil {
		if errors.Is(err, ErrRegistryClosed) {
			kit.WriteError(w, r, http.StatusServiceUnavailable, "shutting down", nil)
			return
		}
		if s.Log != nil {
			s.Log.Error("create session failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusServiceUnavailable, "seed unavailable", nil)
		return
	}

	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	tok, exp, err := s.Tokens.New(sess.ID, ttl)
	if err != nil {
		_ = s.Registry.Close(sess.ID)
		if s.Log != nil {
			s.Log.Error("token issue", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	kit.WriteJSON(w, http.StatusCreated, createResp{
		SessionID:   sess.ID,
		AccessToken: tok,
		ExpiresAt:   exp.UTC(),
		Snapshot:    sess.Store.Snapshot(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := product.ProductList(r.Context())
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, list)
}

// handleQuantity applies op to the product in the path. Unknown ids are not
// an error: the current snapshot comes back unchanged.
func (s *Server) handleQuantity(op quantityOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apply, err := op.accessor(r.Context())
		if err != nil {
			s.writeProviderError(w, r, err)
			return
		}

		applied := apply(chi.URLParam(r, "id"))
		s.Metrics.quantityOp(op.name, applied)

		s.writeSnapshot(w, r)
	}
}

func (s *Server) handleGetLastSale(w http.ResponseWriter, r *http.Request) {
	p, ok, err := product.LastSaleItem(r.Context())
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutLastSale(w http.ResponseWriter, r *http.Request) {
	item, err := decodeProduct(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if strings.TrimSpace(item.ID) == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "id required", nil)
		return
	}

	add, err := product.AddLastSaleItem(r.Context())
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	add(item)

	s.writeSnapshot(w, r)
}

// handleEvents streams every published snapshot, starting with the current
// one, until the client leaves or the session closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		s.writeProviderError(w, r, product.ErrOutsideProvider)
		return
	}

	ch, cancel := sess.Store.Subscribe(eventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	cur := sess.Store.Snapshot()
	if err := kit.WriteEvent(w, "snapshot", cur.Version, cur); err != nil {
		return
	}
	last := cur.Version

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			if snap.Version <= last {
				continue
			}
			last = snap.Version
			if err := kit.WriteEvent(w, "snapshot", snap.Version, snap); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		s.writeProviderError(w, r, product.ErrOutsideProvider)
		return
	}

	if err := s.Registry.Close(sess.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := product.CurrentSnapshot(r.Context())
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, snap)
}

// writeProviderError reports a handler mounted without RequireSession.
func (s *Server) writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	if s.Log != nil {
		s.Log.Error("product accessor failed", zap.Error(err), zap.String("path", r.URL.Path))
	}
	kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (product.Product, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var p product.Product
	if err := dec.Decode(&p); err != nil {
		return product.Product{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return product.Product{}, errors.New("extra data after json object")
	}
	return p, nil
}
