package catalog

import (
	"context"
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
)

// Salt used by the storage CDN to sign direct download links. Fixed value,
// shared by every official client.
const linkSalt = "XGRlBW9FXlekgbPrRHuSiA"

// downloadInfo is the XML document behind a variant's downloadInfoUrl.
type downloadInfo struct {
	Host string `xml:"host"`
	Path string `xml:"path"`
	TS   string `xml:"ts"`
	S    string `xml:"s"`
}

// DirectURL resolves a variant into a directly fetchable audio URL by
// retrieving the variant's download-info document and signing the path.
func (c *Client) DirectURL(ctx context.Context, token string, v Variant) (string, error) {
	if v.InfoURL == "" {
		return "", fmt.Errorf("catalog: variant has no download info url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.InfoURL, nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "OAuth "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog: download info: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var info downloadInfo
	if err := xml.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("catalog: download info: %w", err)
	}
	if info.Host == "" || info.Path == "" {
		return "", fmt.Errorf("catalog: download info incomplete")
	}
	return buildDirectURL(info), nil
}

func buildDirectURL(info downloadInfo) string {
	sign := md5.Sum([]byte(linkSalt + info.Path[1:] + info.S))
	return fmt.Sprintf("https://%s/get-mp3/%x/%s%s", info.Host, sign, info.TS, info.Path)
}
