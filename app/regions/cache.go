package regions

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

type Cache struct {
	regionsDir string
	cache      map[string]*Region
	mu         sync.RWMutex
}

func NewCache(regionsDir string) *Cache {
	return &Cache{
		regionsDir: regionsDir,
		cache:      make(map[string]*Region),
	}
}

// Run loads every region configuration file in the directory into the cache
func (c *Cache) Run() error {
	if _, err := os.Stat(c.regionsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(c.regionsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive region name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		regionName := fileName[:len(fileName)-4]

		region, err := c.LoadRegion(regionName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Region configuration loaded", "region", regionName,
			"enabled", region.Settings.Enabled, "max_items", region.Settings.MaxItems)
	}

	return nil
}

func (c *Cache) LoadRegion(regionName string) (*Region, error) {
	regionFile := c.getRegionFilePath(regionName)
	region, err := c.parseRegion(regionFile)
	if err != nil {
		return nil, err
	}

	// Set region name from parameter
	region.Name = regionName

	if err := c.validateRegion(region); err != nil {
		return nil, fmt.Errorf("invalid region config %s: %w", regionFile, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[region.Name] = region

	return region, nil
}

func (c *Cache) GetRegion(regionName string) (*Region, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	region, ok := c.cache[regionName]
	if !ok {
		return nil, fmt.Errorf("region config with name '%s' not found", regionName)
	}
	return region, nil
}

// Enabled returns enabled regions sorted by name so harvest order is stable
func (c *Cache) Enabled() []Region {
	c.mu.RLock()
	defer c.mu.RUnlock()

	enabled := make([]Region, 0, len(c.cache))
	for _, r := range c.cache {
		if r.Settings.Enabled {
			enabled = append(enabled, *r)
		}
	}

	sort.Slice(enabled, func(i, j int) bool {
		return enabled[i].Name < enabled[j].Name
	})

	return enabled
}

func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Cache) parseRegion(regionFile string) (*Region, error) {
	data, err := os.ReadFile(regionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var region Region
	if err := yaml.Unmarshal(data, &region); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if region.Settings.MaxItems == 0 {
		region.Settings.MaxItems = 100
	}
	if region.Settings.Timeout == 0 {
		region.Settings.Timeout = 30
	}

	return &region, nil
}

func (c *Cache) validateRegion(region *Region) error {
	if region == nil {
		return fmt.Errorf("region is nil")
	}

	if region.Name == "" {
		return fmt.Errorf("region name is required")
	}
	if region.URL == "" {
		return fmt.Errorf("region URL is required")
	}

	nonNegativeFields := map[string]int{
		"max items": region.Settings.MaxItems,
		"timeout":   region.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func (c *Cache) getRegionFilePath(regionName string) string {
	return filepath.Join(c.regionsDir, regionName+".yml")
}
