package noisegeneration

// Biome - тип биома
type Biome int

const (
	BiomeOcean Biome = iota
	BiomeFrozenLake
	BiomeTemperateForest
	BiomeTemperatePlains
	BiomeSnowPlains
	BiomeSnowForest
	BiomeHills
	BiomeSnowHills
	BiomeMountains
	BiomeSnowMountains
)

// Пороговые значения рельефа
const (
	GrassMin      = -0.05
	GrassMax      = 0.19
	HillsMax      = 0.27
	OreMinimum    = 0.285
	IceMin        = -0.3
	ForestCut     = 0.2
	SnowForestCut = -0.2
)

var biomeNames = map[Biome]string{
	BiomeOcean:           "ocean",
	BiomeFrozenLake:      "frozen_lake",
	BiomeTemperateForest: "temperate_forest",
	BiomeTemperatePlains: "temperate_plains",
	BiomeSnowPlains:      "snow_plains",
	BiomeSnowForest:      "snow_forest",
	BiomeHills:           "hills",
	BiomeSnowHills:       "snow_hills",
	BiomeMountains:       "mountains",
	BiomeSnowMountains:   "snow_mountains",
}

func (b Biome) String() string {
	if n, ok := biomeNames[b]; ok {
		return n
	}
	return "unknown"
}

// Snowy сообщает, что биом использует ледяные тайлы
func (b Biome) Snowy() bool {
	switch b {
	case BiomeSnowPlains, BiomeSnowForest, BiomeSnowHills, BiomeSnowMountains, BiomeFrozenLake:
		return true
	}
	return false
}

// ClassifyBiome определяет биом по значениям рельефа t и биома b
func ClassifyBiome(t, b float64) Biome {
	switch {
	case t >= GrassMin && t <= GrassMax:
		switch {
		case b >= ForestCut:
			return BiomeTemperateForest
		case b >= 0:
			return BiomeTemperatePlains
		case b > SnowForestCut:
			return BiomeSnowPlains
		default:
			return BiomeSnowForest
		}
	case t > GrassMax && t <= HillsMax:
		if b >= 0 {
			return BiomeHills
		}
		return BiomeSnowHills
	case t > HillsMax:
		if b >= 0 {
			return BiomeMountains
		}
		return BiomeSnowMountains
	case t > IceMin && t < GrassMin && b < 0:
		return BiomeFrozenLake
	default:
		return BiomeOcean
	}
}
