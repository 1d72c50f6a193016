package things

import (
	"encoding/xml"
	"io"
)

type xmlItems struct {
	XMLName xml.Name  `xml:"items"`
	Item    []xmlItem `xml:"item"`
}

type xmlItem struct {
	ServerID       uint16 `xml:"serverid,attr"`
	ClientID       uint16 `xml:"clientid,attr"`
	Ground         bool   `xml:"ground,attr"`
	Stackable      bool   `xml:"stackable,attr"`
	FluidContainer bool   `xml:"fluidcontainer,attr"`
	Splash         bool   `xml:"splash,attr"`
}

// ReadItemTypesXML reads an item type table from an XML document of the shape
//
//	<items>
//	  <item serverid="100" clientid="200" ground="1"/>
//	</items>
//
// Boolean attributes accept 0/1 as well as true/false; absent attributes are
// false.
func ReadItemTypesXML(r io.Reader) ([]ItemType, error) {
	dec := xml.NewDecoder(r)
	var doc xmlItems
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	types := make([]ItemType, 0, len(doc.Item))
	for _, it := range doc.Item {
		types = append(types, ItemType{
			ServerID:       it.ServerID,
			ClientID:       it.ClientID,
			Ground:         it.Ground,
			Stackable:      it.Stackable,
			FluidContainer: it.FluidContainer,
			Splash:         it.Splash,
		})
	}
	return types, nil
}
