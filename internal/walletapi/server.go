// Package walletapi exposes the league wallet ledger over HTTP.
package walletapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey   = "auth_claims"
	headerWebhookToken = "X-Webhook-Token"
	shutdownTimeout    = 5 * time.Second
)

var (
	errUnauthorized   = errors.New("missing session")
	errForbidden      = errors.New("forbidden")
	errInvalidPayload = errors.New("expected JSON body")
)

// Dependencies are the domain components served by the API.
type Dependencies struct {
	Service    *ledger.Service
	Settlement *ledger.SettlementEngine
	Treasury   *ledger.TreasuryAggregator
	Directory  ledger.LeagueDirectory
}

func (deps Dependencies) validate() error {
	if deps.Service == nil || deps.Settlement == nil || deps.Treasury == nil || deps.Directory == nil {
		return fmt.Errorf("walletapi: incomplete dependencies")
	}
	return nil
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, deps Dependencies, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := deps.validate(); err != nil {
		return err
	}
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	handler := &httpHandler{logger: logger, deps: deps, cfg: cfg}
	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("walletapi listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	member := router.Group("/")
	member.Use(validator.GinMiddleware(claimsContextKey))
	member.GET("/wallet/:leagueId", handler.handleWallet)
	member.POST("/wallets/:walletId/withdraw", handler.handleWithdraw)
	member.GET("/withdrawals/me", handler.handleMyWithdrawals)
	member.POST("/payouts", handler.handlePayout)
	member.GET("/leagues/:leagueId/treasury", handler.handleTreasury)
	member.POST("/leagues/:leagueId/settle-week", handler.handleSettleWeek)

	if cfg.WebhookToken != "" {
		processor := router.Group("/internal")
		processor.Use(requireWebhookToken(cfg.WebhookToken))
		processor.POST("/withdrawals/:withdrawalId/complete", handler.handleCompleteWithdrawal)
		processor.POST("/withdrawals/:withdrawalId/fail", handler.handleFailWithdrawal)
		processor.POST("/payouts/:payoutId/paid", handler.handlePayoutPaid)
	}

	return router
}

func requireWebhookToken(expected string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		provided := ctx.GetHeader(headerWebhookToken)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid webhook token"))
			return
		}
		ctx.Next()
	}
}

type httpHandler struct {
	logger *zap.Logger
	deps   Dependencies
	cfg    Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

// respondError maps domain errors onto HTTP statuses. Unclassified errors
// are logged and reported without detail.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(status, errorResponse(code, "internal error"))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errInvalidPayload):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusBadRequest, "insufficient_balance"
	case isValidationError(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ledger.ErrNoScoresRecorded):
		return http.StatusConflict, "no_scores_recorded"
	case errors.Is(err, ledger.ErrWithdrawalClosed):
		return http.StatusConflict, "withdrawal_closed"
	case errors.Is(err, ledger.ErrPayoutClosed):
		return http.StatusConflict, "payout_closed"
	case errors.Is(err, ledger.ErrUnknownWallet),
		errors.Is(err, ledger.ErrUnknownWithdrawal),
		errors.Is(err, ledger.ErrUnknownPayout),
		errors.Is(err, ledger.ErrUnknownLeague),
		errors.Is(err, ledger.ErrUnknownMember):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "ledger_error"
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		ledger.ErrInvalidLeagueID,
		ledger.ErrInvalidUserID,
		ledger.ErrInvalidWalletID,
		ledger.ErrInvalidWeek,
		ledger.ErrInvalidPayoutReason,
		ledger.ErrInvalidPayoutSpeed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func actorID(ctx *gin.Context) (ledger.UserID, error) {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return ledger.UserID{}, errUnauthorized
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	if claims == nil {
		return ledger.UserID{}, errUnauthorized
	}
	userID, err := ledger.NewUserID(claims.GetUserID())
	if err != nil {
		return ledger.UserID{}, errUnauthorized
	}
	return userID, nil
}

// authorizeOwner verifies the actor owns the league.
func (handler *httpHandler) authorizeOwner(ctx context.Context, leagueID ledger.LeagueID, actor ledger.UserID) error {
	settings, err := handler.deps.Directory.GetLeagueSettings(ctx, leagueID)
	if err != nil {
		return err
	}
	if settings.OwnerUserID != actor {
		return fmt.Errorf("%w: league owner only", errForbidden)
	}
	return nil
}

// authorizeMember verifies the actor owns or belongs to the league.
func (handler *httpHandler) authorizeMember(ctx context.Context, leagueID ledger.LeagueID, actor ledger.UserID) error {
	settings, err := handler.deps.Directory.GetLeagueSettings(ctx, leagueID)
	if err != nil {
		return err
	}
	if settings.OwnerUserID == actor {
		return nil
	}
	_, err = handler.deps.Directory.GetMember(ctx, leagueID, actor)
	if errors.Is(err, ledger.ErrUnknownMember) {
		return fmt.Errorf("%w: league members only", errForbidden)
	}
	return err
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
