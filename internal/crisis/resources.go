package crisis

import (
	"encoding/json"
	"fmt"
	"os"
)

// Hotlines 地区热线
type Hotlines struct {
	Suicide    string `json:"suicide"`
	SuicideAlt string `json:"suicideAlt"`
	Crisis     string `json:"crisis"`
	Emergency  string `json:"emergency"`
}

// Resource 具名求助资源
type Resource struct {
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Text        string `json:"text,omitempty"`
	URL         string `json:"url,omitempty"`
	Available   string `json:"available,omitempty"`
	Description string `json:"description,omitempty"`
}

// ResourceSet 每个响应都必须携带的危机资源
type ResourceSet struct {
	US        Hotlines   `json:"US"`
	Resources []Resource `json:"resources"`
}

// Names 返回资源名称，用于记录 resourcesProvided
func (r ResourceSet) Names() []string {
	names := make([]string, 0, len(r.Resources))
	for _, res := range r.Resources {
		names = append(names, res.Name)
	}
	return names
}

func (r ResourceSet) clone() ResourceSet {
	out := r
	out.Resources = append([]Resource(nil), r.Resources...)
	return out
}

func (r ResourceSet) valid() bool {
	return r.US.Emergency != "" && r.US.Suicide != "" && len(r.Resources) > 0
}

// DefaultResources 内置的美国地区资源表
func DefaultResources() ResourceSet {
	return ResourceSet{
		US: Hotlines{
			Suicide:    "988",
			SuicideAlt: "1-800-273-8255",
			Crisis:     "Text HOME to 741741",
			Emergency:  "911",
		},
		Resources: []Resource{
			{
				Name:        "988 Suicide & Crisis Lifeline",
				Phone:       "988",
				URL:         "https://988lifeline.org",
				Available:   "24/7",
				Description: "Free and confidential support for people in distress",
			},
			{
				Name:        "Crisis Text Line",
				Text:        "Text HOME to 741741",
				URL:         "https://www.crisistextline.org",
				Available:   "24/7",
				Description: "Text with a trained crisis counselor",
			},
			{
				Name:        "Veterans Crisis Line",
				Phone:       "988 (Press 1)",
				Text:        "838255",
				URL:         "https://www.veteranscrisisline.net",
				Available:   "24/7",
				Description: "Support for veterans and their families",
			},
			{
				Name:        "SAMHSA National Helpline",
				Phone:       "1-800-662-4357",
				URL:         "https://www.samhsa.gov/find-help/national-helpline",
				Available:   "24/7",
				Description: "Treatment referral for mental health and substance use",
			},
			{
				Name:        "The Trevor Project",
				Phone:       "1-866-488-7386",
				Text:        "Text START to 678678",
				URL:         "https://www.thetrevorproject.org",
				Available:   "24/7",
				Description: "Crisis support for LGBTQ+ young people",
			},
		},
	}
}

// Catalog 只读资源目录，任何情况下 Get 都能返回资源
type Catalog struct {
	set ResourceSet
}

// NewCatalog 使用给定资源创建目录，资源不完整时回退到内置表
func NewCatalog(set ResourceSet) *Catalog {
	if !set.valid() {
		set = DefaultResources()
	}
	return &Catalog{set: set.clone()}
}

// LoadCatalog 从 JSON 文件加载资源，path 为空时使用内置表。
// 返回的 Catalog 永远可用，error 仅用于告警。
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(DefaultResources()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return NewCatalog(DefaultResources()), fmt.Errorf("failed to read crisis resources file: %w", err)
	}

	var set ResourceSet
	if err := json.Unmarshal(data, &set); err != nil {
		return NewCatalog(DefaultResources()), fmt.Errorf("failed to parse crisis resources file: %w", err)
	}

	if !set.valid() {
		return NewCatalog(DefaultResources()), fmt.Errorf("crisis resources file %s is incomplete", path)
	}

	return NewCatalog(set), nil
}

// Get 返回资源副本
func (c *Catalog) Get() ResourceSet {
	if c == nil {
		return DefaultResources()
	}
	return c.set.clone()
}
