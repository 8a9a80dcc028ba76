// Package feishu mirrors scan jobs into a Feishu bitable so operators can
// follow them without shell access to the scanning host.
package feishu

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	"github.com/pkg/errors"
)

var defaultBaseURL = lark.FeishuBaseUrl

var hostAllowList = []string{
	"feishu.cn",
	"feishuapp.com",
	"larksuite.com",
	"larkoffice.com",
}

// BitableRef identifies one table inside a bitable app.
type BitableRef struct {
	RawURL   string
	AppToken string
	TableID  string
}

// ParseBitableURL extracts the app token and table id from a bitable link
// such as https://xxx.feishu.cn/base/<app>?table=<table>.
func ParseBitableURL(raw string) (ref BitableRef, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "parse bitable url failed")
		}
	}()

	ref = BitableRef{RawURL: strings.TrimSpace(raw)}
	if ref.RawURL == "" {
		return ref, errors.New("empty url")
	}
	u, err := url.Parse(ref.RawURL)
	if err != nil {
		return ref, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ref, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if !isAllowedHost(u.Host) {
		return ref, fmt.Errorf("host %q is not recognized as Feishu", u.Host)
	}

	segments := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ref, errors.New("missing path segments in url")
	}
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "base" {
			ref.AppToken = segments[i+1]
			break
		}
	}
	if ref.AppToken == "" {
		ref.AppToken = segments[len(segments)-1]
	}

	q := u.Query()
	for _, key := range []string{"table", "tableId", "table_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ref.TableID = v
			break
		}
	}
	if ref.TableID == "" {
		return ref, errors.New("missing table id in url query")
	}
	return ref, nil
}

func isAllowedHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "" {
		return false
	}
	for _, allowed := range hostAllowList {
		if strings.HasSuffix(lower, allowed) {
			return true
		}
	}
	return false
}

// recordAPI is the slice of the bitable record service the recorder uses.
type recordAPI interface {
	Create(ctx context.Context, appToken, tableID string, fields map[string]any) (string, error)
	Update(ctx context.Context, appToken, tableID, recordID string, fields map[string]any) error
}

type larkRecordService interface {
	Create(ctx context.Context, req *larkbitable.CreateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error)
	Update(ctx context.Context, req *larkbitable.UpdateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.UpdateAppTableRecordResp, error)
}

// sdkRecordAPI calls the bitable service through the Lark SDK. The SDK
// fetches and caches the tenant access token itself.
type sdkRecordAPI struct {
	svc larkRecordService
}

func newSDKRecordAPI(appID, appSecret, baseURL string) *sdkRecordAPI {
	opts := []lark.ClientOptionFunc{lark.WithLogLevel(larkcore.LogLevelError)}
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" && baseURL != defaultBaseURL {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	client := lark.NewClient(appID, appSecret, opts...)
	return &sdkRecordAPI{svc: client.Bitable.V1.AppTableRecord}
}

func (a *sdkRecordAPI) Create(ctx context.Context, appToken, tableID string, fields map[string]any) (string, error) {
	req := larkbitable.NewCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		AppTableRecord(larkbitable.NewAppTableRecordBuilder().Fields(fields).Build()).
		Build()
	resp, err := a.svc.Create(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "feishu: create record request failed")
	}
	if resp == nil || resp.ApiResp == nil {
		return "", errors.New("feishu: create record returned empty response")
	}
	if err := ensureSDKSuccess("create record", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.Record == nil {
		return "", errors.New("feishu: create record response missing record")
	}
	recordID := strings.TrimSpace(larkcore.StringValue(resp.Data.Record.RecordId))
	if recordID == "" {
		return "", errors.New("feishu: create record response missing record id")
	}
	return recordID, nil
}

func (a *sdkRecordAPI) Update(ctx context.Context, appToken, tableID, recordID string, fields map[string]any) error {
	req := larkbitable.NewUpdateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		RecordId(recordID).
		AppTableRecord(larkbitable.NewAppTableRecordBuilder().Fields(fields).Build()).
		Build()
	resp, err := a.svc.Update(ctx, req)
	if err != nil {
		return errors.Wrap(err, "feishu: update record request failed")
	}
	if resp == nil || resp.ApiResp == nil {
		return errors.New("feishu: update record returned empty response")
	}
	return ensureSDKSuccess("update record", resp.Success(), resp.Code, resp.Msg, resp.RequestId())
}

func ensureSDKSuccess(action string, ok bool, code int, msg, logID string) error {
	if ok {
		return nil
	}
	if strings.TrimSpace(logID) == "" {
		return fmt.Errorf("feishu: %s failed code=%d msg=%s", action, code, msg)
	}
	return fmt.Errorf("feishu: %s failed code=%d msg=%s log_id=%s", action, code, msg, logID)
}
