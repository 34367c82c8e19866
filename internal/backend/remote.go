package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

type remoteDescription struct {
	URL   string `json:"url"`
	Value struct {
		Name        string          `json:"name"`
		Description json.RawMessage `json:"description"`
	} `json:"value"`
}

// RemoteFunction triggers an HTTP endpoint with the value as a query
// parameter on every write.
type RemoteFunction struct {
	*output.State
	id     string
	base   *url.URL
	param  string
	client *http.Client
}

func newRemoteConstructor(client *http.Client) output.Constructor {
	return func(id string, raw json.RawMessage) (output.Output, error) {
		var d remoteDescription
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode remote_function description: %w", err)
		}
		if d.URL == "" {
			return nil, fmt.Errorf("remote_function description has no url")
		}
		base, err := url.Parse(d.URL)
		if err != nil {
			return nil, fmt.Errorf("remote_function url: %w", err)
		}
		if d.Value.Name == "" {
			return nil, fmt.Errorf("remote_function description has no value name")
		}
		if len(d.Value.Description) == 0 {
			return nil, fmt.Errorf("remote_function description has no value description")
		}
		initial, err := value.Parse(d.Value.Description, value.KindInvalid)
		if err != nil {
			return nil, fmt.Errorf("remote_function value: %w", err)
		}
		return &RemoteFunction{
			State:  output.NewState(initial),
			id:     id,
			base:   base,
			param:  d.Value.Name,
			client: client,
		}, nil
	}
}

func (o *RemoteFunction) ControlOutput(v value.Value) error {
	next, overridden, err := o.Command(v)
	if err != nil || overridden {
		return err
	}
	return o.call(next)
}

func (o *RemoteFunction) OverrideWith(v value.Value) error {
	next, err := o.Override(v)
	if err != nil {
		return err
	}
	return o.call(next)
}

func (o *RemoteFunction) RestoreControl() error {
	return o.call(o.Restore())
}

func (o *RemoteFunction) IsOverridden() (value.Value, bool) { return o.Overridden() }

func (o *RemoteFunction) CurrentState() value.Value { return o.Current() }

// URL returns the request sent for v.
func (o *RemoteFunction) URL(v value.Value) string {
	u := *o.base
	param := url.QueryEscape(o.param) + "=" + queryValue(v)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String()
}

func (o *RemoteFunction) call(v value.Value) error {
	target := o.URL(v)
	resp, err := o.client.Get(target)
	if err != nil {
		log.Warn().Err(err).Str("output", o.id).Str("url", target).Msg("Remote function call failed")
		return fmt.Errorf("call %s: %w", o.id, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Str("output", o.id).Str("url", target).Msg("Remote function rejected call")
		return fmt.Errorf("call %s: unexpected status %s", o.id, resp.Status)
	}
	return nil
}

// queryValue escapes the serialized value. Power commands serialize already
// escaped.
func queryValue(v value.Value) string {
	if v.Kind() == value.KindPowerCommand {
		return v.Serialize()
	}
	return url.QueryEscape(v.Serialize())
}
