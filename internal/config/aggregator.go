package config

import (
	"net/url"
	"strings"
)

// IsAggregatorHost はホスト名が集約サイトのドメイン（またはそのサブドメイン）かを判定する。
func IsAggregatorHost(host string, domains []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func isAggregatorURL(rawURL string, domains []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return IsAggregatorHost(u.Hostname(), domains)
}
