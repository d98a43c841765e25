package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Setup описание игры из файла setup.yaml в каталоге игры
type Setup struct {
	Models    []string        `yaml:"models"`
	Materials []MaterialSetup `yaml:"materials"`
	Terrain   TerrainSetup    `yaml:"terrain"`
}

// MaterialSetup запись материала в файле описания игры.
// Textures содержит одну текстуру для всех граней или шесть.
type MaterialSetup struct {
	ID            uint16    `yaml:"id"`
	Name          string    `yaml:"name"`
	Textures      []string  `yaml:"textures"`
	Transparency  uint8     `yaml:"transparency"`
	LightEmission uint8     `yaml:"light_emission"`
	Solid         *bool     `yaml:"solid"`
	Model         []BoxPart `yaml:"model"`
}

// TerrainSetup параметры эталонного генератора ландшафта
type TerrainSetup struct {
	Seed            int64   `yaml:"seed"`
	Generator       string  `yaml:"generator"` // "heightmap" или "flat"
	Scale           float64 `yaml:"scale"`
	Amplitude       float64 `yaml:"amplitude"`
	Base            int     `yaml:"base"`
	SurfaceMaterial string  `yaml:"surface_material"`
	FillMaterial    string  `yaml:"fill_material"`
}

// LoadSetup читает файл описания игры и строит по нему реестр
func LoadSetup(path string) (*Registry, *Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", path, err)
	}

	var setup Setup
	if err := yaml.Unmarshal(data, &setup); err != nil {
		return nil, nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}

	reg, err := Build(&setup)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, &setup, nil
}

// Build создает реестр из уже разобранного описания
func Build(setup *Setup) (*Registry, error) {
	reg := New()
	for _, model := range setup.Models {
		reg.AddModel(model)
	}

	for _, ms := range setup.Materials {
		m := Material{
			Name:          ms.Name,
			Transparency:  ms.Transparency,
			LightEmission: ms.LightEmission,
			Solid:         ms.Solid == nil || *ms.Solid,
			Model:         ms.Model,
		}

		switch len(ms.Textures) {
		case 0:
		case 1:
			id := reg.TextureID(ms.Textures[0])
			for i := range m.Textures {
				m.Textures[i] = id
			}
		case 6:
			for i, tex := range ms.Textures {
				m.Textures[i] = reg.TextureID(tex)
			}
		default:
			return nil, fmt.Errorf("материал %q: ожидалась 1 или 6 текстур, получено %d", ms.Name, len(ms.Textures))
		}

		if err := reg.RegisterMaterial(ms.ID, m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
