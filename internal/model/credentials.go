package model

import "strings"

// SessionCredentials are the Steam community cookies the backend needs to read
// drop counts. At rest the fields hold sealed values; see utils.SealCredentials.
type SessionCredentials struct {
	SID string `json:"sid"`
	SLS string `json:"sls"`
	SMA string `json:"sma,omitempty"`
}

func (c SessionCredentials) Empty() bool {
	return strings.TrimSpace(c.SID) == "" || strings.TrimSpace(c.SLS) == ""
}

type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// CredentialsFromCookies picks the session cookies out of a browser cookie dump.
// The machine auth cookie is named steamMachineAuth<steamid>.
func CredentialsFromCookies(cookies []Cookie) (SessionCredentials, bool) {
	var out SessionCredentials
	for _, c := range cookies {
		switch {
		case c.Name == "sessionid":
			out.SID = c.Value
		case c.Name == "steamLoginSecure":
			out.SLS = c.Value
		case strings.HasPrefix(c.Name, "steamMachineAuth"):
			out.SMA = c.Value
		}
	}
	return out, !out.Empty()
}
