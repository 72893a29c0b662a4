package nimbusauth

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/internal/pkg/tokenstore"
	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
)

const refreshKey = "refresh"

// bounds a shared refresh once it no longer follows any caller's context
const refreshTimeout = 30 * time.Second

// GetAccessToken returns a bearer token with more than the refresh margin
// remaining, refreshing first if necessary
func (a *Authenticator) GetAccessToken(ctx context.Context) (string, error) {
	r, err := a.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	return r.Value, nil
}

// RefreshToken is a no-op returning the current bearer token while more
// than MinAccessTokenValidity remains.  Otherwise a refresh is performed;
// concurrent callers share a single in-flight request.
func (a *Authenticator) RefreshToken(ctx context.Context) (tokenstore.Record, error) {
	if r, ok := a.store.ValidBearer(a.MinAccessTokenValidity); ok {
		return r, nil
	}

	return a.shared(ctx, func() (tokenstore.Record, bool) {
		return a.store.ValidBearer(a.MinAccessTokenValidity)
	})
}

// ForceRefresh replaces a bearer token the API has rejected.  If another
// caller has already replaced staleToken the current token is returned
// without a new request.
func (a *Authenticator) ForceRefresh(ctx context.Context, staleToken string) (tokenstore.Record, error) {
	replaced := func() (tokenstore.Record, bool) {
		r, ok := a.store.ValidBearer(0)
		if !ok || r.Value == staleToken {
			return tokenstore.Record{}, false
		}
		return r, true
	}

	// a joined flight may hand back the rejected token, so the second
	// attempt runs after it has been dropped from the store
	for attempt := 0; attempt < 2; attempt++ {
		r, err := a.shared(ctx, replaced)
		if err != nil {
			return tokenstore.Record{}, err
		}
		if r.Value != staleToken {
			return r, nil
		}
		a.store.DiscardBearer(staleToken)
	}
	return tokenstore.Record{}, apierrors.NewAuthError("refresh token", 0, "", "token endpoint reissued the rejected bearer token")
}

func (a *Authenticator) shared(ctx context.Context, current func() (tokenstore.Record, bool)) (tokenstore.Record, error) {
	ch := a.flight.DoChan(refreshKey, func() (interface{}, error) {
		// another flight may have finished while we were queued
		if r, ok := current(); ok {
			return r, nil
		}

		// the flight outlives whichever caller started it
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return a.refresh(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return tokenstore.Record{}, res.Err
		}
		return res.Val.(tokenstore.Record), nil
	case <-ctx.Done():
		return tokenstore.Record{}, &apierrors.AuthError{Op: "refresh token", Err: ctx.Err()}
	}
}

func (a *Authenticator) refresh(ctx context.Context) (tokenstore.Record, error) {
	const op = "refresh token"
	ctxLogger := logging.Logger(ctx)

	clientID := a.ClientID
	grant, ok := a.store.Get(tokenstore.TokenTypeRefresh)
	if !ok {
		grant, ok = a.store.Get(tokenstore.TokenTypePairing)
		clientID = pairingClientID
	}
	if !ok {
		return tokenstore.Record{}, apierrors.NewAuthError(op, 0, "",
			"bearer token expired or missing, and no refresh or pairing token found - pair or run the device code flow first")
	}

	ctxLogger.Debugf("Sending refresh token request to Nimbus URL [%s] using %s token, client [%s]", a.tokenURL(), grant.Type, clientID)

	cfg := a.oauthConfig(clientID)
	cfg.Scopes = nil
	tok, err := cfg.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: grant.Value}).Token()
	if err != nil {
		return tokenstore.Record{}, oauthError(op, err)
	}

	now := a.store.Now()
	bearer := tokenstore.NewRecord(tokenstore.TokenTypeBearer, tok.AccessToken, now, lifetimeOf(tok, now))
	records := []tokenstore.Record{bearer}

	// oauth2 echoes the grant back when no new refresh token is issued; a
	// pairing token is never stored as a refresh token
	if grant.Type == tokenstore.TokenTypeRefresh && tok.RefreshToken != "" && tok.RefreshToken != grant.Value {
		records = append(records, tokenstore.NewRecord(tokenstore.TokenTypeRefresh, tok.RefreshToken, now, 0))
	}
	a.store.SetAll(records...)

	ctxLogger.Debugf("Refreshed token: %s", bearer)
	return bearer, nil
}

func lifetimeOf(tok *oauth2.Token, now time.Time) time.Duration {
	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case json.Number:
		secs, _ = v.Float64()
	case string:
		secs, _ = strconv.ParseFloat(v, 64)
	}
	if secs > 0 {
		return time.Duration(secs) * time.Second
	}

	if !tok.Expiry.IsZero() && tok.Expiry.After(now) {
		return tok.Expiry.Sub(now).Round(time.Second)
	}
	return defaultBearerLifetime
}

// SetOAuth2Tokens injects tokens obtained elsewhere.  accessToken may be
// empty, in which case the next call refreshes.  A zero expiresIn with an
// access token means the default lifetime of one hour.
func (a *Authenticator) SetOAuth2Tokens(refreshToken, accessToken string, expiresIn time.Duration) error {
	const op = "set oauth2 tokens"

	if refreshToken == "" {
		return apierrors.NewValidationError(op, "refresh token is required")
	}
	if expiresIn < 0 {
		return apierrors.NewValidationError(op, "negative token lifetime: %s", expiresIn)
	}

	now := a.store.Now()
	records := []tokenstore.Record{tokenstore.NewRecord(tokenstore.TokenTypeRefresh, refreshToken, now, 0)}
	if accessToken != "" {
		if expiresIn == 0 {
			expiresIn = defaultBearerLifetime
		}
		records = append(records, tokenstore.NewRecord(tokenstore.TokenTypeBearer, accessToken, now, expiresIn))
	} else {
		a.store.Clear(tokenstore.TokenTypeBearer)
	}
	a.store.SetAll(records...)

	logging.Logger(context.Background()).Debugf("Injected tokens: %s", a.store)
	return nil
}

// SetPairingToken restores a pairing token from an earlier session
func (a *Authenticator) SetPairingToken(pairingToken string) error {
	if pairingToken == "" {
		return apierrors.NewValidationError("set pairing token", "pairing token is required")
	}
	a.store.Set(tokenstore.NewRecord(tokenstore.TokenTypePairing, pairingToken, a.store.Now(), 0))
	return nil
}
