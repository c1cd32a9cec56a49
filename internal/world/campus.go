// Built-in campus layout: the university campus map with 30 numbered
// target buildings and one unnumbered building that only contributes walls.
// The mensa (Building 4) and the library (IKMZ) are picked more often.
package world

const (
	// campusScale maps the 800×800 campus map onto a 400×400 grid.
	campusScale   = 2
	wallThickness = 1

	regularWeight = 1.0 / 35
	popularWeight = 1.0 / 10
)

// segment is a wall in map coordinates relative to its building origin.
type segment struct {
	x0, y0, x1, y1 int
}

// building is a set of walls anchored at origin. A zero weight marks a
// building that is not a target.
type building struct {
	name   string
	origin Point
	target Point
	weight float64
	walls  []segment
}

// campusBuildings lists the buildings in target order, in map coordinates.
var campusBuildings = []building{
	{"Building 1", Point{X: 630, Y: 490}, Point{X: 640, Y: 510}, regularWeight, []segment{{0, 0, 20, 0}, {0, 0, 0, 80}, {0, 80, 20, 80}, {20, 0, 20, 30}, {20, 60, 20, 80}}},
	{"Building 2", Point{X: 620, Y: 440}, Point{X: 630, Y: 460}, regularWeight, []segment{{0, 0, 20, 0}, {0, 0, 0, 30}, {0, 30, 30, 30}}},
	{"Building 3", Point{X: 700, Y: 530}, Point{X: 710, Y: 560}, regularWeight, []segment{{0, 0, 20, 0}, {20, 0, 20, 80}, {0, 80, 20, 80}, {0, 0, 0, 30}, {0, 60, 0, 80}}},
	{"Building 4", Point{X: 690, Y: 430}, Point{X: 710, Y: 450}, popularWeight, []segment{{0, 0, 40, 0}, {40, 0, 40, 50}, {0, 50, 40, 50}, {0, 0, 0, 20}, {0, 40, 0, 50}}},
	{"Building 5", Point{X: 700, Y: 310}, Point{X: 740, Y: 385}, regularWeight, []segment{{0, 0, 20, 0}, {20, 0, 20, 60}, {0, 0, 0, 30}, {0, 60, 0, 90}, {20, 60, 60, 60}, {0, 90, 60, 90}, {60, 60, 60, 90}}},
	{"Building 6", Point{X: 630, Y: 310}, Point{X: 650, Y: 320}, regularWeight, []segment{{0, 0, 50, 0}, {0, 0, 0, 20}, {50, 0, 50, 20}, {0, 20, 20, 20}, {40, 20, 50, 20}}},
	{"Building 7", Point{X: 630, Y: 340}, Point{X: 640, Y: 380}, regularWeight, []segment{{0, 10, 20, 10}, {0, 10, 0, 70}, {0, 70, 20, 70}, {20, 10, 20, 30}, {20, 60, 20, 70}}},
	{"Building 8", Point{X: 490, Y: 340}, Point{X: 560, Y: 340}, regularWeight, []segment{{0, 0, 60, 0}, {0, 0, 0, 30}, {0, 30, 20, 30}, {60, 0, 60, -50}, {60, -50, 90, -50}, {90, -50, 90, 30}, {70, 30, 90, 30}}},
	{"Building 9", Point{X: 570, Y: 390}, Point{X: 580, Y: 440}, regularWeight, []segment{{0, 20, 20, 20}, {0, 20, 0, 70}, {0, 70, 20, 70}, {20, 20, 20, 30}, {20, 60, 20, 70}}},
	{"Building 10", Point{X: 490, Y: 480}, Point{X: 570, Y: 500}, regularWeight, []segment{{0, 0, 80, 0}, {0, 0, 0, 40}, {0, 40, 30, 40}, {80, 0, 80, -20}, {80, -20, 100, -20}, {100, -20, 100, 40}, {70, 40, 100, 40}}},
	{"Building 11", Point{X: 490, Y: 550}, Point{X: 540, Y: 570}, regularWeight, []segment{{30, 0, 100, 0}, {0, 0, 0, 40}, {100, 0, 100, 40}, {0, 40, 100, 40}}},
	{"Building 12", Point{X: 760, Y: 280}, Point{X: 770, Y: 310}, regularWeight, []segment{{0, 40, 0, 70}, {0, 10, 20, 10}, {0, 70, 20, 70}, {20, 10, 20, 70}}},
	{"Building 13", Point{X: 720, Y: 530}, Point{X: 730, Y: 540}, regularWeight, []segment{{20, 0, 30, 0}, {0, 0, 0, 30}, {0, 30, 30, 30}, {30, 0, 30, 30}}},
	{"Building 14", Point{X: 340, Y: 520}, Point{X: 350, Y: 560}, regularWeight, []segment{{0, 0, 20, 0}, {20, 0, 20, 90}, {0, 90, 20, 90}, {0, 0, 0, 20}, {0, 50, 0, 90}}},
	{"Building 14a", Point{X: 370, Y: 520}, Point{X: 380, Y: 540}, regularWeight, []segment{{20, 0, 40, 0}, {-10, 0, -10, 30}, {-10, 30, 40, 30}, {40, 0, 40, 30}}},
	{"Building 15", Point{X: 280, Y: 600}, Point{X: 310, Y: 610}, regularWeight, []segment{{0, 0, 40, 0}, {0, 0, 0, 20}, {0, 20, 40, 20}}},
	{"Building 16", Point{X: 280, Y: 560}, Point{X: 310, Y: 570}, regularWeight, []segment{{0, 0, 40, 0}, {0, 0, 0, 20}, {0, 20, 40, 20}}},
	{"Building 17", Point{X: 280, Y: 520}, Point{X: 310, Y: 530}, regularWeight, []segment{{0, 0, 40, 0}, {0, 0, 0, 20}, {0, 20, 40, 20}}},
	{"Building 19", Point{X: 450, Y: 700}, Point{X: 470, Y: 730}, regularWeight, []segment{{30, 0, 50, 0}, {0, 0, 0, 50}, {0, 50, 50, 50}, {50, 0, 50, 50}}},
	{"Building 20", Point{X: 570, Y: 680}, Point{X: 590, Y: 700}, regularWeight, []segment{{20, 0, 40, 0}, {-10, 0, -10, 30}, {-10, 30, 40, 30}, {40, 0, 40, 30}}},
	{"Building 24", Point{X: 490, Y: 620}, Point{X: 560, Y: 630}, regularWeight, []segment{{0, 0, 80, 0}, {0, 0, 0, 30}, {0, 30, 30, 30}, {80, 0, 80, -30}, {80, -30, 100, -30}, {100, -30, 100, 30}, {70, 30, 100, 30}}},
	{"Building 25", Point{X: 260, Y: 100}, Point{X: 320, Y: 150}, regularWeight, []segment{{0, 0, 90, 0}, {0, 0, 0, 150}, {40, 150, 90, 150}, {90, 0, 90, 150}}},
	{"Building 26", Point{X: 390, Y: 100}, Point{X: 410, Y: 130}, regularWeight, []segment{{0, 0, 40, 0}, {0, 0, 0, 150}, {0, 150, 10, 150}, {40, 0, 40, 150}}},
	{"Building 27", Point{X: 350, Y: 290}, Point{X: 400, Y: 300}, regularWeight, []segment{{30, 0, 100, 0}, {-10, 0, -10, 30}, {100, 0, 100, 30}, {-10, 30, 100, 30}}},
	{"Building 28", Point{X: 250, Y: 280}, Point{X: 260, Y: 320}, regularWeight, []segment{{0, 10, 60, 10}, {0, 10, 0, 90}, {0, 90, 60, 90}, {60, 10, 60, 30}, {60, 60, 60, 90}, {30, 30, 30, 60}}},
	{"Building 29", Point{X: 350, Y: 340}, Point{X: 370, Y: 360}, regularWeight, []segment{{-10, 0, 80, 0}, {-10, 0, -10, 30}, {-10, 30, 30, 30}, {80, 0, 80, -20}, {80, -20, 100, -20}, {100, -20, 100, 30}, {70, 30, 100, 30}}},
	{"BUD", Point{X: 630, Y: 600}, Point{X: 650, Y: 630}, regularWeight, []segment{{30, 0, 40, 0}, {0, 0, 0, 50}, {0, 50, 40, 50}, {40, 0, 40, 50}}},
	{"IKMZ", Point{X: 230, Y: 430}, Point{X: 280, Y: 470}, popularWeight, []segment{{30, 0, 70, 0}, {0, 0, 0, 60}, {0, 60, 70, 60}, {70, 0, 70, 60}}},
	{"Building 31", Point{X: 440, Y: 550}, Point{X: 450, Y: 600}, regularWeight, []segment{{0, 10, 20, 10}, {0, 10, 0, 70}, {0, 70, 20, 70}, {20, 10, 20, 30}, {20, 60, 20, 70}}},
	{"Building 35", Point{X: 520, Y: 680}, Point{X: 540, Y: 700}, regularWeight, []segment{{30, 0, 40, 0}, {0, 0, 0, 30}, {0, 30, 40, 30}, {40, 0, 40, 30}}},
	// Unnumbered on the campus map: walls only.
	{"Building 36", Point{X: 440, Y: 410}, Point{}, 0, []segment{{0, 10, 20, 10}, {0, 10, 0, 60}, {0, 60, 20, 60}, {20, 10, 20, 30}, {20, 50, 20, 60}}},
}

// CampusLayout returns the built-in 400×400 campus.
func CampusLayout() Layout {
	l := Layout{
		Name:   "campus",
		Width:  800 / campusScale,
		Height: 800 / campusScale,
	}
	for _, b := range campusBuildings {
		l.Walls = append(l.Walls, b.wallsOnGrid()...)
		if b.weight == 0 {
			continue
		}
		l.Targets = append(l.Targets, Target{
			Name:   b.name,
			Pos:    scalePoint(b.target),
			Weight: b.weight,
		})
	}
	return l
}

// wallsOnGrid converts the building's walls to grid coordinates.
func (b building) wallsOnGrid() []Wall {
	walls := make([]Wall, 0, len(b.walls))
	for _, s := range b.walls {
		walls = append(walls, Wall{
			From:      scalePoint(Point{X: b.origin.X + s.x0, Y: b.origin.Y + s.y0}),
			To:        scalePoint(Point{X: b.origin.X + s.x1, Y: b.origin.Y + s.y1}),
			Thickness: wallThickness,
		})
	}
	return walls
}

func scalePoint(p Point) Point {
	return Point{X: p.X / campusScale, Y: p.Y / campusScale}
}
