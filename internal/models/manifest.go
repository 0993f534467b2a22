package models

// Manifest holds the header fields declared in a plugin's main file.
// JSON keys follow the header names used by update clients.
type Manifest struct {
	Name            string `json:"Name"`
	PluginURI       string `json:"PluginURI"`
	Version         string `json:"Version"`
	Description     string `json:"Description"`
	Author          string `json:"Author"`
	AuthorURI       string `json:"AuthorURI"`
	TextDomain      string `json:"TextDomain"`
	DomainPath      string `json:"DomainPath"`
	Network         string `json:"Network"`
	RequiresWP      string `json:"RequiresWP"`
	RequiresPHP     string `json:"RequiresPHP"`
	UpdateURI       string `json:"UpdateURI"`
	RequiresPlugins string `json:"RequiresPlugins"`
}
