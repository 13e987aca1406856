// Package platform 描述 plurcast 支持的发布平台与其凭据命名空间。
package platform

import (
	"sort"
	"strings"
)

// ServicePrefix 是所有平台 service 名的公共前缀。
const ServicePrefix = "plurcast."

// Platform 是一个平台的凭据布局。
type Platform struct {
	Name       string // nostr
	Service    string // plurcast.nostr
	Key        string // private_key
	LegacyFile string // nostr.keys，多账户之前的明文文件名
}

var known = map[string]Platform{
	"nostr":    {Name: "nostr", Service: "plurcast.nostr", Key: "private_key", LegacyFile: "nostr.keys"},
	"mastodon": {Name: "mastodon", Service: "plurcast.mastodon", Key: "access_token", LegacyFile: "mastodon.token"},
	"bluesky":  {Name: "bluesky", Service: "plurcast.bluesky", Key: "app_password", LegacyFile: "bluesky.auth"},
	"ssb":      {Name: "ssb", Service: "plurcast.ssb", Key: "keypair", LegacyFile: "ssb.secret"},
}

// Lookup 按名称查找平台。
func Lookup(name string) (Platform, bool) {
	p, ok := known[name]
	return p, ok
}

// All 返回按名称排序的全部平台。
func All() []Platform {
	out := make([]Platform, 0, len(known))
	for _, p := range known {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names 返回排序后的平台名。
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, p := range all {
		out[i] = p.Name
	}
	return out
}

// NameForService 把 service（plurcast.nostr）映射回平台名（nostr）。
// 非 plurcast 前缀的 service 原样返回。
func NameForService(service string) string {
	return strings.TrimPrefix(service, ServicePrefix)
}

// LegacyFile 返回 (service, key) 对应的历史明文文件名。
func LegacyFile(service, key string) (string, bool) {
	for _, p := range known {
		if p.Service == service && p.Key == key {
			return p.LegacyFile, true
		}
	}
	return "", false
}
