package weather

import "strings"

type City struct {
	Name  string  `json:"name"`
	State string  `json:"state"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

var knownCities = []City{
	{Name: "Mumbai", State: "Maharashtra", Lat: 19.0760, Lon: 72.8777},
	{Name: "Delhi", State: "Delhi", Lat: 28.7041, Lon: 77.1025},
	{Name: "Bengaluru", State: "Karnataka", Lat: 12.9716, Lon: 77.5946},
	{Name: "Chennai", State: "Tamil Nadu", Lat: 13.0827, Lon: 80.2707},
	{Name: "Kolkata", State: "West Bengal", Lat: 22.5726, Lon: 88.3639},
	{Name: "Hyderabad", State: "Telangana", Lat: 17.3850, Lon: 78.4867},
	{Name: "Pune", State: "Maharashtra", Lat: 18.5204, Lon: 73.8567},
	{Name: "Ahmedabad", State: "Gujarat", Lat: 23.0225, Lon: 72.5714},
}

func KnownCities() []City {
	out := make([]City, len(knownCities))
	copy(out, knownCities)
	return out
}

func LookupCity(name string) (City, bool) {
	name = strings.TrimSpace(name)
	for _, c := range knownCities {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return City{}, false
}
