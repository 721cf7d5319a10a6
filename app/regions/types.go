package regions

// Region is one independently fetched sub-partition of the listing source.
// Name is derived from the configuration filename (without .yml extension).
type Region struct {
	Name     string   // Derived from filename
	URL      string   `yaml:"url"`
	Settings Settings `yaml:"settings"`
}

type Settings struct {
	Enabled  bool `yaml:"enabled"`
	MaxItems int  `yaml:"max_items"`
	Timeout  int  `yaml:"timeout"` // seconds
}
