package advtest

import (
	"context"
	"net/url"

	"github.com/AdguardTeam/golibs/service"
	"github.com/advblocker/advfilter/internal/errcoll"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/filterlist"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/whitelist"
	"github.com/advblocker/advfilter/internal/rulestat"
	"github.com/advblocker/advfilter/internal/webrequest"
)

// Interface Mocks
//
// Keep entities within a module/package in alphabetic order.

// Package errcoll

// type check
var _ errcoll.Interface = (*ErrorCollector)(nil)

// ErrorCollector is an [errcoll.Interface] for tests.
type ErrorCollector struct {
	OnCollect func(ctx context.Context, err error)
}

// Collect implements the [errcoll.Interface] interface for *ErrorCollector.
func (c *ErrorCollector) Collect(ctx context.Context, err error) {
	c.OnCollect(ctx, err)
}

// Package rulestat

// type check
var _ rulestat.Interface = (*RuleStat)(nil)

// RuleStat is a [rulestat.Interface] for tests.
type RuleStat struct {
	OnCollect func(ctx context.Context, hit *rulestat.Hit)
}

// Collect implements the [rulestat.Interface] interface for *RuleStat.
func (s *RuleStat) Collect(ctx context.Context, hit *rulestat.Hit) {
	s.OnCollect(ctx, hit)
}

// Package service

// type check
var _ service.Refresher = (*Refresher)(nil)

// Refresher is a [service.Refresher] for tests.
type Refresher struct {
	OnRefresh func(ctx context.Context) (err error)
}

// Refresh implements the [service.Refresher] interface for *Refresher.
func (r *Refresher) Refresh(ctx context.Context) (err error) {
	return r.OnRefresh(ctx)
}

// Package websvc

// WebRequest is a websvc.WebRequest for tests.
type WebRequest struct {
	OnOnBeforeRequest func(
		ctx context.Context,
		d *webrequest.RequestDetails,
	) (v *webrequest.Verdict)
	OnOnBeforeSendHeaders func(
		ctx context.Context,
		d *webrequest.HeadersDetails,
	) (v *webrequest.Verdict)
	OnOnHeadersReceived func(
		ctx context.Context,
		d *webrequest.HeadersDetails,
	) (v *webrequest.Verdict)
	OnOnRequestCompleted     func(ctx context.Context, requestID string)
	OnOnTabRemoved           func(ctx context.Context, tabID int)
	OnGetSelectorsAndScripts func(
		ctx context.Context,
		tabID int,
		documentURL string,
		opts requestfilter.CSSOptions,
		retrieveScripts bool,
	) (res *webrequest.SelectorsAndScripts)
}

// OnBeforeRequest implements the websvc.WebRequest interface for *WebRequest.
func (wr *WebRequest) OnBeforeRequest(
	ctx context.Context,
	d *webrequest.RequestDetails,
) (v *webrequest.Verdict) {
	return wr.OnOnBeforeRequest(ctx, d)
}

// OnBeforeSendHeaders implements the websvc.WebRequest interface for
// *WebRequest.
func (wr *WebRequest) OnBeforeSendHeaders(
	ctx context.Context,
	d *webrequest.HeadersDetails,
) (v *webrequest.Verdict) {
	return wr.OnOnBeforeSendHeaders(ctx, d)
}

// OnHeadersReceived implements the websvc.WebRequest interface for
// *WebRequest.
func (wr *WebRequest) OnHeadersReceived(
	ctx context.Context,
	d *webrequest.HeadersDetails,
) (v *webrequest.Verdict) {
	return wr.OnOnHeadersReceived(ctx, d)
}

// OnRequestCompleted implements the websvc.WebRequest interface for
// *WebRequest.
func (wr *WebRequest) OnRequestCompleted(ctx context.Context, requestID string) {
	wr.OnOnRequestCompleted(ctx, requestID)
}

// OnTabRemoved implements the websvc.WebRequest interface for *WebRequest.
func (wr *WebRequest) OnTabRemoved(ctx context.Context, tabID int) {
	wr.OnOnTabRemoved(ctx, tabID)
}

// GetSelectorsAndScripts implements the websvc.WebRequest interface for
// *WebRequest.
func (wr *WebRequest) GetSelectorsAndScripts(
	ctx context.Context,
	tabID int,
	documentURL string,
	opts requestfilter.CSSOptions,
	retrieveScripts bool,
) (res *webrequest.SelectorsAndScripts) {
	return wr.OnGetSelectorsAndScripts(ctx, tabID, documentURL, opts, retrieveScripts)
}

// Whitelist is a websvc.Whitelist for tests.
type Whitelist struct {
	OnState          func() (st *whitelist.State)
	OnConfigure      func(ctx context.Context, st *whitelist.State) (err error)
	OnWhiteListURL   func(ctx context.Context, url string) (err error)
	OnUnWhiteListURL func(ctx context.Context, url string) (err error)
}

// State implements the websvc.Whitelist interface for *Whitelist.
func (wl *Whitelist) State() (st *whitelist.State) {
	return wl.OnState()
}

// Configure implements the websvc.Whitelist interface for *Whitelist.
func (wl *Whitelist) Configure(ctx context.Context, st *whitelist.State) (err error) {
	return wl.OnConfigure(ctx, st)
}

// WhiteListURL implements the websvc.Whitelist interface for *Whitelist.
func (wl *Whitelist) WhiteListURL(ctx context.Context, url string) (err error) {
	return wl.OnWhiteListURL(ctx, url)
}

// UnWhiteListURL implements the websvc.Whitelist interface for *Whitelist.
func (wl *Whitelist) UnWhiteListURL(ctx context.Context, url string) (err error) {
	return wl.OnUnWhiteListURL(ctx, url)
}

// Lists is a websvc.Lists for tests.
type Lists struct {
	OnLists         func() (statuses []*filterlist.Status)
	OnAddCustomList func(ctx context.Context, u *url.URL) (id filter.ListID, err error)
	OnSetEnabled    func(ctx context.Context, id filter.ListID, enabled bool) (err error)
	OnRemoveList    func(ctx context.Context, id filter.ListID) (err error)
}

// Lists implements the websvc.Lists interface for *Lists.
func (l *Lists) Lists() (statuses []*filterlist.Status) {
	return l.OnLists()
}

// AddCustomList implements the websvc.Lists interface for *Lists.
func (l *Lists) AddCustomList(ctx context.Context, u *url.URL) (id filter.ListID, err error) {
	return l.OnAddCustomList(ctx, u)
}

// SetEnabled implements the websvc.Lists interface for *Lists.
func (l *Lists) SetEnabled(ctx context.Context, id filter.ListID, enabled bool) (err error) {
	return l.OnSetEnabled(ctx, id, enabled)
}

// RemoveList implements the websvc.Lists interface for *Lists.
func (l *Lists) RemoveList(ctx context.Context, id filter.ListID) (err error) {
	return l.OnRemoveList(ctx, id)
}
