// Package registry хранит определения материалов и ресурсов игры.
// Реестр заполняется один раз при старте и после этого только читается,
// поэтому передается компонентам по ссылке без блокировок.
package registry

import (
	"fmt"
	"sort"
)

// Air идентификатор пустого блока
const Air uint16 = 0

// BoxPart часть пользовательской модели блока, координаты в 1/16 блока
type BoxPart struct {
	Min      [3]uint8  `yaml:"min"`
	Max      [3]uint8  `yaml:"max"`
	Textures [6]uint16 `yaml:"-"`
}

// Material определение типа блока
type Material struct {
	Name          string
	Textures      [6]uint16 // по граням +x,-x,+y,-y,+z,-z
	Model         []BoxPart
	Transparency  uint8
	LightEmission uint8
	Solid         bool
}

// IsTransparent сообщает, пропускает ли материал свет
func (m Material) IsTransparent() bool { return m.Transparency > 0 }

// IsCustomBlock сообщает, задана ли у материала своя модель
func (m Material) IsCustomBlock() bool { return len(m.Model) > 0 }

// IsVisuallySolid сообщает, закрывает ли блок соседние грани
func (m Material) IsVisuallySolid() bool { return !m.IsTransparent() && !m.IsCustomBlock() }

// IndexedMaterial материал вместе с его идентификатором
type IndexedMaterial struct {
	ID uint16
	Material
}

// Registry реестр материалов, текстур и моделей
type Registry struct {
	materials []Material
	byName    map[string]uint16
	textures  map[string]uint16
	models    []string
}

// New создает реестр, в котором зарегистрирован только воздух
func New() *Registry {
	r := &Registry{
		byName:   make(map[string]uint16),
		textures: make(map[string]uint16),
	}
	r.materials = append(r.materials, Material{Name: "air", Transparency: 255, Solid: false})
	r.byName["air"] = Air
	return r
}

// RegisterMaterial регистрирует материал под указанным идентификатором
func (r *Registry) RegisterMaterial(id uint16, m Material) error {
	if id == Air {
		return fmt.Errorf("идентификатор %d зарезервирован за воздухом", Air)
	}
	if other, exists := r.byName[m.Name]; exists && other != id && m.Name != "" {
		return fmt.Errorf("материал %q уже зарегистрирован с id %d", m.Name, other)
	}
	for int(id) >= len(r.materials) {
		r.materials = append(r.materials, Material{})
	}
	r.materials[id] = m
	if m.Name != "" {
		r.byName[m.Name] = id
	}
	return nil
}

// TextureID возвращает индекс текстуры, регистрируя ее при первом обращении
func (r *Registry) TextureID(name string) uint16 {
	if id, ok := r.textures[name]; ok {
		return id
	}
	id := uint16(len(r.textures))
	r.textures[name] = id
	return id
}

// AddModel регистрирует имя модели сущности
func (r *Registry) AddModel(name string) {
	r.models = append(r.models, name)
}

// FindMaterial ищет материал по имени, возвращая def если такого нет
func (r *Registry) FindMaterial(name string, def uint16) uint16 {
	if id, ok := r.byName[name]; ok {
		return id
	}
	return def
}

// Material возвращает определение материала
func (r *Registry) Material(id uint16) (Material, bool) {
	if int(id) >= len(r.materials) {
		return Material{}, false
	}
	return r.materials[id], true
}

// IsSolid используется при проверке столкновений
func (r *Registry) IsSolid(id uint16) bool {
	m, ok := r.Material(id)
	return ok && m.Solid
}

// IsVisuallySolid неизвестные материалы считаются непрозрачными
func (r *Registry) IsVisuallySolid(id uint16) bool {
	if id == Air {
		return false
	}
	m, ok := r.Material(id)
	return !ok || m.IsVisuallySolid()
}

// Textures возвращает имена текстур, упорядоченные по индексу
func (r *Registry) Textures() []string {
	out := make([]string, len(r.textures))
	for name, id := range r.textures {
		out[id] = name
	}
	return out
}

// Models возвращает имена моделей
func (r *Registry) Models() []string {
	return append([]string(nil), r.models...)
}

// Materials возвращает все именованные материалы кроме воздуха
func (r *Registry) Materials() []IndexedMaterial {
	var out []IndexedMaterial
	for id, m := range r.materials {
		if id == int(Air) || m.Name == "" {
			continue
		}
		out = append(out, IndexedMaterial{ID: uint16(id), Material: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
