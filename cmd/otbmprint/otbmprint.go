// otbmprint loads an OTBM map file and prints a human-readable summary:
// header fields, tile/item/town/waypoint counts and every warning the loader
// collected. Useful for eyeballing maps produced by other tools.
package main

import (
	"flag"
	"fmt"
	"os"

	"badc0de.net/pkg/flagutil/v1"

	otbm "badc0de.net/pkg/go-otbm/otb/map"
	"badc0de.net/pkg/go-otbm/things"

	"github.com/golang/glog"
	"github.com/gookit/color"
)

var (
	mapPath   = flag.String("map", "", "path of the .otbm file to inspect")
	typesPath = flag.String("item_types_xml", "", "path of the item types xml; without one every item id is unknown")
	policy    = flag.String("unknown_item_policy", "placeholder", "placeholder, skip or error")
	showTiles = flag.Bool("tiles", false, "whether to print every tile")
)

func parsePolicy(s string) (otbm.UnknownItemPolicy, error) {
	switch s {
	case "placeholder":
		return otbm.UNKNOWN_ITEM_PLACEHOLDER, nil
	case "skip":
		return otbm.UNKNOWN_ITEM_SKIP, nil
	case "error":
		return otbm.UNKNOWN_ITEM_ERROR, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

func loadTypes() *things.Things {
	if *typesPath == "" {
		glog.Warning("no -item_types_xml given; every item id will be unknown")
		return things.New(nil)
	}
	f, err := os.Open(*typesPath)
	if err != nil {
		glog.Errorln("opening item types xml file", err)
		os.Exit(1)
	}
	defer f.Close()
	types, err := things.ReadItemTypesXML(f)
	if err != nil {
		glog.Errorln("parsing item types xml file", err)
		os.Exit(1)
	}
	return things.New(types)
}

func main() {
	flagutil.Parse()

	if *mapPath == "" {
		glog.Errorln("pass -map with the path of an .otbm file")
		os.Exit(1)
	}
	pol, err := parsePolicy(*policy)
	if err != nil {
		glog.Errorln(err)
		os.Exit(1)
	}

	th := loadTypes()
	m, rep, err := otbm.LoadFile(*mapPath, th, otbm.Options{Policy: pol})
	if err != nil {
		if rep != nil {
			printWarnings(rep)
		}
		glog.Errorln("loading map", err)
		os.Exit(1)
	}

	color.Bold.Printf("%s\n", *mapPath)
	fmt.Printf("  version:    %d\n", m.Header.Version)
	fmt.Printf("  dimensions: %dx%d\n", m.Header.Width, m.Header.Height)
	if m.Header.ItemsVerMajor != 0 || m.Header.ItemsVerMinor != 0 {
		fmt.Printf("  items.otb:  %d.%d\n", m.Header.ItemsVerMajor, m.Header.ItemsVerMinor)
	}
	for _, d := range m.Header.Descriptions {
		fmt.Printf("  description: %q\n", d)
	}
	for _, ext := range []struct{ name, v string }{
		{"spawn file", m.Header.SpawnMonsterFile},
		{"house file", m.Header.HouseFile},
		{"npc file", m.Header.SpawnNpcFile},
		{"zone file", m.Header.ZoneFile},
	} {
		if ext.v != "" {
			fmt.Printf("  %s: %s\n", ext.name, ext.v)
		}
	}
	fmt.Printf("  tiles: %d, items: %d, towns: %d, waypoints: %d\n",
		rep.Tiles, rep.Items, len(m.Towns), len(m.Waypoints))
	if rep.UnknownItemIDs > 0 {
		color.Yellow.Printf("  unknown item ids: %d (%d placeholders)\n", rep.UnknownItemIDs, len(rep.Replacements))
	}
	if rep.ServerLikeIDs > 0 || rep.ClientLikeIDs > 0 {
		color.Yellow.Printf("  possible id-space mismatch: %d server-like, %d client-like\n", rep.ServerLikeIDs, rep.ClientLikeIDs)
	}
	printWarnings(rep)

	if *showTiles {
		for _, tile := range m.Tiles() {
			fmt.Printf("%s house=%d flags=%08x zones=%v\n", tile.Pos, tile.HouseID, tile.Flags, tile.Zones)
			for i := 0; ; i++ {
				item, err := tile.GetItem(i)
				if err != nil {
					break
				}
				fmt.Printf("  %v\n", item)
			}
		}
	}
}

func printWarnings(rep *otbm.LoadReport) {
	for _, w := range rep.Warnings {
		color.Red.Printf("warning: %s\n", w)
	}
}
