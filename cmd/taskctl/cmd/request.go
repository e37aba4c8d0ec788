package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/go-taskboard/internal/client"
)

var (
	reqData   string
	reqParams []string
	reqRaw    bool
)

// newRequestCmd - `taskctl get /api/tasks` и т. п. Путь без /api дополняется.
func newRequestCmd(method string) *cobra.Command {
	withBody := method != http.MethodGet && method != http.MethodDelete

	c := &cobra.Command{
		Use:   strings.ToLower(method) + " <path>",
		Short: method + " request to the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := buildPath(args[0], reqParams)
			if err != nil {
				return err
			}

			var body any
			if withBody {
				raw, err := readData(cmd, reqData)
				if err != nil {
					return err
				}
				if len(raw) > 0 {
					body = json.RawMessage(raw)
				}
			}

			var out json.RawMessage
			if err := newClient(newStore()).Do(cmd.Context(), method, path, body, &out); err != nil {
				if errors.Is(err, client.ErrAuthExpired) {
					return fmt.Errorf("%w Run `%s auth login`", err, appName)
				}
				return err
			}

			return printJSON(cmd, out)
		},
	}

	c.Flags().StringArrayVarP(&reqParams, "param", "p", nil, "query parameter key=value (repeatable)")
	c.Flags().BoolVar(&reqRaw, "raw", false, "print response without indentation")
	if withBody {
		c.Flags().StringVarP(&reqData, "data", "d", "", "JSON body, @file or - for stdin")
	}

	return c
}

func buildPath(p string, params []string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasPrefix(p, "/api/") && p != "/api" {
		p = "/api" + p
	}

	if len(params) == 0 {
		return p, nil
	}

	q := url.Values{}
	for _, kv := range params {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return "", fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		q.Add(k, v)
	}

	return p + "?" + q.Encode(), nil
}

func readData(cmd *cobra.Command, data string) ([]byte, error) {
	var raw []byte
	switch {
	case data == "":
		return nil, nil
	case data == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		raw = b
	default:
		raw = []byte(data)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !json.Valid(raw) {
		return nil, errors.New("request body is not valid JSON")
	}

	return raw, nil
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}

	if !reqRaw {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			raw = buf.Bytes()
		}
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return err
}

func init() {
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		rootCmd.AddCommand(newRequestCmd(m))
	}
}
