package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/simulation"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// SpawnRequest запрос на создание сущности
type SpawnRequest struct {
	Kind           string        `json:"kind"`
	Position       vec.Vec3Float `json:"position"`
	Size           vec.Vec3Float `json:"size"`
	Mass           float64       `json:"mass"`
	Wander         bool          `json:"wander"`
	PlaceOnSurface bool          `json:"place_on_surface"`
}

// TileDTO тайл в представлении API
type TileDTO struct {
	Material  string  `json:"material"`
	Fluid     string  `json:"fluid"`
	Level     int8    `json:"level"`
	Direction [3]int8 `json:"direction"`
	State     string  `json:"state,omitempty"`
}

func tileToDTO(t tile.Tile) TileDTO {
	return TileDTO{
		Material:  t.Material.String(),
		Fluid:     t.Fluid.String(),
		Level:     t.Level,
		Direction: [3]int8{t.Direction.X, t.Direction.Y, t.Direction.Z},
		State:     t.State().String(),
	}
}

// toTile собирает тайл и отклоняет вырожденные наклоны
func (d TileDTO) toTile() (tile.Tile, error) {
	material, err := tile.ParseMaterial(d.Material)
	if err != nil {
		return tile.Tile{}, err
	}
	fluid, err := tile.ParseFluid(d.Fluid)
	if err != nil {
		return tile.Tile{}, err
	}

	dir := tile.Direction{X: d.Direction[0], Y: d.Direction[1], Z: d.Direction[2]}
	if dir.IsZero() {
		if d.Level != 0 && d.Level != 1 {
			return tile.Tile{}, errors.New("уровень плоского тайла должен быть 0 или 1")
		}
		return tile.Tile{Material: material, Fluid: fluid, Level: d.Level}, nil
	}
	return tile.NewSlope(material, fluid, dir, d.Level)
}

func parseEntityID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Некорректный id сущности")
		return uuid.Nil, false
	}
	return id, true
}

func parseTilePos(c *gin.Context) (vec.Vec3, bool) {
	var coords [3]int
	for i, name := range [...]string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			respondError(c, http.StatusBadRequest, "Некорректная координата "+name)
			return vec.Vec3{}, false
		}
		coords[i] = v
	}
	return vec.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}, true
}

// RaycastResponse результат луча. Без попадания заполнено только Hit.
type RaycastResponse struct {
	Hit    bool           `json:"hit"`
	Tile   *vec.Vec3      `json:"tile,omitempty"`
	Point  *vec.Vec3Float `json:"point,omitempty"`
	Normal *vec.Vec3Float `json:"normal,omitempty"`
	T      float64        `json:"t,omitempty"`
}

// parseRayVector читает вектор из параметров запроса с префиксом prefix: ox, oy, oz
func parseRayVector(c *gin.Context, prefix string) (vec.Vec3Float, bool) {
	var coords [3]float64
	for i, axis := range [...]string{"x", "y", "z"} {
		name := prefix + axis
		v, err := strconv.ParseFloat(c.Query(name), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			respondError(c, http.StatusBadRequest, "Некорректный параметр "+name)
			return vec.Vec3Float{}, false
		}
		coords[i] = v
	}
	return vec.Vec3Float{X: coords[0], Y: coords[1], Z: coords[2]}, true
}

// entityError переводит ошибку симулятора в ответ
func entityError(c *gin.Context, err error) {
	if errors.Is(err, simulation.ErrEntityNotFound) {
		respondError(c, http.StatusNotFound, "Сущность не найдена")
		return
	}
	respondError(c, http.StatusBadRequest, err.Error())
}

// handleListEntities возвращает снимки всех сущностей
func (rs *RestServer) handleListEntities(c *gin.Context) {
	entities := rs.simulator.Entities()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список сущностей",
		Data: gin.H{
			"entities": entities,
			"total":    len(entities),
		},
	})
}

// handleSpawnEntity создает сущность
func (rs *RestServer) handleSpawnEntity(c *gin.Context) {
	req := SpawnRequest{
		Size: vec.Vec3Float{X: 0.8, Y: 0.8, Z: 1.8},
		Mass: 1,
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	kind, err := entity.ParseKind(req.Kind)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := rs.simulator.Spawn(c.Request.Context(), simulation.SpawnRequest{
		Kind:           kind,
		Position:       req.Position,
		Size:           req.Size,
		Mass:           req.Mass,
		Wander:         req.Wander,
		PlaceOnSurface: req.PlaceOnSurface,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Сущность создана",
		Data:    snap,
	})
}

// handleGetEntity возвращает снимок сущности
func (rs *RestServer) handleGetEntity(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	snap, err := rs.simulator.Entity(id)
	if err != nil {
		entityError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сущность", Data: snap})
}

// handleDespawnEntity удаляет сущность
func (rs *RestServer) handleDespawnEntity(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	if err := rs.simulator.Despawn(c.Request.Context(), id); err != nil {
		entityError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сущность удалена"})
}

// handleEntityInput ставит ввод сущности в очередь на следующий тик
func (rs *RestServer) handleEntityInput(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	var in simulation.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if err := rs.simulator.SetInput(id, in); err != nil {
		entityError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Ввод принят"})
}

// handleGetTile возвращает тайл по мировым координатам
func (rs *RestServer) handleGetTile(c *gin.Context) {
	pos, ok := parseTilePos(c)
	if !ok {
		return
	}
	t, err := rs.simulator.Tile(c.Request.Context(), pos)
	if err != nil {
		rs.logger.Error("Ошибка чтения тайла %+v: %v", pos, err)
		respondError(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Тайл", Data: tileToDTO(t)})
}

// handleSetTile заменяет тайл по мировым координатам
func (rs *RestServer) handleSetTile(c *gin.Context) {
	pos, ok := parseTilePos(c)
	if !ok {
		return
	}
	var dto TileDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	t, err := dto.toTile()
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := rs.simulator.SetTile(c.Request.Context(), pos, t); err != nil {
		rs.logger.Error("Ошибка записи тайла %+v: %v", pos, err)
		respondError(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Тайл обновлен", Data: tileToDTO(t)})
}

// handleRaycast ведет луч из точки o вдоль вектора d и возвращает первое попадание в рельеф
func (rs *RestServer) handleRaycast(c *gin.Context) {
	origin, ok := parseRayVector(c, "o")
	if !ok {
		return
	}
	ray, ok := parseRayVector(c, "d")
	if !ok {
		return
	}

	hit, found, err := rs.simulator.CastRay(c.Request.Context(), origin, ray)
	switch {
	case errors.Is(err, simulation.ErrInvalidRay):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		rs.logger.Error("Ошибка луча %+v -> %+v: %v", origin, ray, err)
		respondError(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}

	resp := RaycastResponse{Hit: found}
	if found {
		resp.Tile = &hit.Tile
		resp.Point = &hit.Point
		resp.Normal = &hit.Normal
		resp.T = hit.T
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Луч", Data: resp})
}
