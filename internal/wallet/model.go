package wallet

// Record is a locally stored wallet: the secret seed, the address derived
// from it and an optional display name.
type Record struct {
	Seed    string `json:"seed"`
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Summary is a Record without its secret, safe to hand to the UI.
type Summary struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Summary strips the seed from the record.
func (r Record) Summary() Summary {
	return Summary{Address: r.Address, Name: r.Name}
}
