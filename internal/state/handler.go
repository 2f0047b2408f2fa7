package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/renmo-pay/renmo/internal/payments"
	"github.com/renmo-pay/renmo/internal/session"
	"github.com/renmo-pay/renmo/internal/wallet"
)

const heartbeatInterval = 15 * time.Second

// Handler exposes the facade over HTTP.
type Handler struct {
	facade *Facade
}

// NewHandler constructs a session handler.
func NewHandler(facade *Facade) *Handler {
	return &Handler{facade: facade}
}

type addWalletRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type switchRequest struct {
	Address string `json:"address"`
}

type paymentRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type receiptResponse struct {
	Hash        string    `json:"hash"`
	Result      string    `json:"result"`
	LedgerIndex uint32    `json:"ledger_index"`
	Attempts    int       `json:"attempts"`
	CompletedAt time.Time `json:"completed_at"`
}

func toReceiptResponse(r payments.Receipt) receiptResponse {
	return receiptResponse{
		Hash:        r.Hash,
		Result:      r.Result,
		LedgerIndex: r.LedgerIndex,
		Attempts:    r.Attempts,
		CompletedAt: r.CompletedAt,
	}
}

// State returns the current session state.
func (h *Handler) State(c *fiber.Ctx) error {
	return c.JSON(h.facade.State())
}

// Connect opens the ledger session.
func (h *Handler) Connect(c *fiber.Ctx) error {
	if err := h.facade.Connect(c.UserContext()); err != nil {
		return httpError(err)
	}
	return c.JSON(h.facade.State())
}

// Disconnect closes the ledger session.
func (h *Handler) Disconnect(c *fiber.Ctx) error {
	if err := h.facade.Disconnect(c.UserContext()); err != nil {
		return httpError(err)
	}
	return c.JSON(h.facade.State())
}

// Events streams session state as server-sent events.
func (h *Handler) Events(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	updates, cancel := h.facade.Subscribe()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case st, ok := <-updates:
				if !ok {
					return
				}
				payload, err := json.Marshal(st)
				if err != nil {
					return
				}
				fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload)
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// ListWallets returns stored wallets without secrets.
func (h *Handler) ListWallets(c *fiber.Ctx) error {
	wallets, err := h.facade.Wallets(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"wallets": wallets,
		"active":  h.facade.State().ActiveAddress,
	})
}

// AddWallet creates a funded wallet, or imports one when a secret is given.
func (h *Handler) AddWallet(c *fiber.Ctx) error {
	var req addWalletRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	summary, err := h.facade.AddWallet(c.UserContext(), req.Name, req.Secret)
	if errors.Is(err, session.ErrFundingTimeout) && summary.Address != "" {
		// the wallet is stored and active; the caller still needs its address
		return c.Status(http.StatusGatewayTimeout).JSON(fiber.Map{
			"error":  err.Error(),
			"wallet": summary,
		})
	}
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(summary)
}

// SwitchWallet changes the active wallet.
func (h *Handler) SwitchWallet(c *fiber.Ctx) error {
	var req switchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Address == "" {
		return fiber.NewError(http.StatusBadRequest, "address is required")
	}
	if err := h.facade.SwitchWallet(c.UserContext(), req.Address); err != nil {
		return httpError(err)
	}
	return c.JSON(h.facade.State())
}

// RemoveWallet deletes a stored wallet.
func (h *Handler) RemoveWallet(c *fiber.Ctx) error {
	if err := h.facade.RemoveWallet(c.UserContext(), c.Params("address")); err != nil {
		return httpError(err)
	}
	return c.JSON(h.facade.State())
}

// SecretKey reveals a stored seed.
func (h *Handler) SecretKey(c *fiber.Ctx) error {
	address := c.Params("address")
	secret, err := h.facade.SecretKey(c.UserContext(), address)
	if err != nil {
		return httpError(err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fiber.Map{"address": address, "secret": secret})
}

// Balance returns the active wallet's token balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.facade.Balance(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"address":   h.facade.State().ActiveAddress,
		"balance":   balance,
		"timestamp": time.Now().UTC(),
	})
}

// SendPayment pays from the active wallet.
func (h *Handler) SendPayment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	receipt, err := h.facade.SendPayment(c.UserContext(), req.Destination, req.Amount)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

// SetupTrustline opens the token trust line on the active wallet.
func (h *Handler) SetupTrustline(c *fiber.Ctx) error {
	receipt, err := h.facade.SetupTrustline(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

// History lists recent transactions of the active wallet.
func (h *Handler) History(c *fiber.Ctx) error {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fiber.NewError(http.StatusBadRequest, "limit must be a positive integer")
		}
		if n > session.MaxHistoryLimit {
			return fiber.NewError(http.StatusBadRequest,
				fmt.Sprintf("limit must not exceed %d", session.MaxHistoryLimit))
		}
		limit = n
	}
	txs, err := h.facade.History(c.UserContext(), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrNoActiveWallet),
		errors.Is(err, session.ErrAlreadyImported):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidCredential),
		errors.Is(err, session.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidDestination):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrFundingTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, session.ErrSubmissionFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, wallet.ErrWrongPassphrase),
		errors.Is(err, wallet.ErrPassphraseRequired):
		return fiber.NewError(http.StatusLocked, err.Error())
	case errors.Is(err, session.ErrNetworkUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
